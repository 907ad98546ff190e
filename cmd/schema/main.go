package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/deltastream-lab/tradesim/internal/config"
)

func main() {
	cfg := config.DefaultConfig()

	schema, err := cfg.GenerateSchema()
	if err != nil {
		log.Fatalf("Failed to generate schema: %v", err)
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal schema: %v", err)
	}

	schemaName := "tradesim-config.json"
	schemaPath := filepath.Join("./config", schemaName)
	samplePath := filepath.Join("./config", "tradesim.yaml")

	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	if err := os.WriteFile(schemaPath, schemaJSON, 0644); err != nil {
		log.Fatalf("Failed to write schema to file: %v", err)
	}

	// Write a sample config next to the schema unless one already exists.
	if _, err := os.Stat(samplePath); os.IsNotExist(err) {
		yamlBytes, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("Failed to marshal sample config to yaml: %v", err)
		}

		yamlBytes = append([]byte("# yaml-language-server: $schema="+schemaName+"\n"), yamlBytes...)
		if err := os.WriteFile(samplePath, yamlBytes, 0644); err != nil {
			log.Fatalf("Failed to write sample config to file: %v", err)
		}

		log.Printf("Sample config successfully generated at %s", samplePath)
	}

	log.Printf("Schema successfully generated at %s", schemaPath)
}
