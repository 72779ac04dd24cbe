package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpawnRing defines one ring of agents created by the one-shot spawner.
type SpawnRing struct {
	ClassID int32      `yaml:"class_id"`
	Count   int        `yaml:"count"`
	Center  [3]float64 `yaml:"center"`
	Radius  float64    `yaml:"radius"`
}

type spawnListFile struct {
	Rings []SpawnRing `yaml:"rings"`
}

// LoadSpawnList loads spawn rings from a YAML file.
func LoadSpawnList(path string) ([]SpawnRing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn_list: %w", err)
	}
	var f spawnListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn_list: %w", err)
	}
	for i, r := range f.Rings {
		if r.Count < 0 || r.Radius < 0 {
			return nil, fmt.Errorf("spawn_list ring %d: negative count or radius", i)
		}
	}
	return f.Rings, nil
}
