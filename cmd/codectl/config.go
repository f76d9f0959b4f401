package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const defaultLogMode = "production"

// loadConfig reads the optional YAML file and the environment. Keys from the file are exported
// as upper-cased environment variables (neo4j_uri -> NEO4J_URI) unless the variable is already
// set, so the shared app wiring sees one configuration.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("log_mode", defaultLogMode)
	v.SetDefault("run_mode", "worker")
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, key := range v.AllKeys() {
		env := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, set := os.LookupEnv(env); set {
			continue
		}
		val := v.GetString(key)
		if val == "" {
			continue
		}
		if err := os.Setenv(env, val); err != nil {
			return nil, fmt.Errorf("export %s: %w", env, err)
		}
	}
	return v, nil
}
