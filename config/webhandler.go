package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const maxConfigBody = 64 << 10

type apiReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func reply(w http.ResponseWriter, code int, status, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(apiReply{Status: status, Message: msg}); err != nil {
		slog.Error("Failed to encode config API reply", "error", err)
	}
}

// ConfigHandler serves /api/config. GET returns the runtime subset of the
// file on disk. POST merges a new subset into the file, validates the
// result as the daemon would run it and replaces the file, which in turn
// triggers a reload.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			serveRuntime(w, cfile)
		case http.MethodPost:
			updateRuntime(w, r, cfile)
		default:
			reply(w, http.StatusMethodNotAllowed, "error", "method not allowed")
		}
	}
}

func serveRuntime(w http.ResponseWriter, cfile string) {
	// the file may have been edited by hand since the last reload
	conf, err := load(cfile)
	if err != nil {
		slog.Error("Config API can't read config", "error", err)
		reply(w, http.StatusInternalServerError, "error", "failed to read configuration")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(conf.Runtime()); err != nil {
		slog.Error("Failed to encode runtime config", "error", err)
	}
}

func updateRuntime(w http.ResponseWriter, r *http.Request, cfile string) {
	var rc RuntimeConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody)).Decode(&rc); err != nil {
		reply(w, http.StatusBadRequest, "error", "invalid JSON: "+err.Error())
		return
	}

	conf, err := load(cfile)
	if err != nil {
		slog.Error("Config API can't read config", "error", err)
		reply(w, http.StatusInternalServerError, "error", "failed to read configuration")
		return
	}
	conf.ApplyRuntime(rc)

	// environment overrides take part in validation but never reach the
	// file, so secrets from .env stay off disk
	effective := *conf
	effective.applyEnv()
	if err := effective.resolve(); err != nil {
		slog.Warn("Rejected runtime config update", "error", err)
		reply(w, http.StatusBadRequest, "error", fmt.Sprintf("Invalid configuration: %v", err))
		return
	}

	if err := writeFile(cfile, conf); err != nil {
		slog.Error("Failed to save config", "file", cfile, "error", err)
		reply(w, http.StatusInternalServerError, "error", "failed to save configuration")
		return
	}
	slog.Info("Runtime config updated, reload follows", "file", cfile)
	reply(w, http.StatusOK, "success", "configuration updated")
}

// writeFile replaces cfile atomically so a reload never sees half a file.
func writeFile(cfile string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(cfile), ".config-*.yml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), cfile)
}
