package config

import (
	"os"
	"strconv"
)

// applyEnv layers TRACKER_* environment variables over the loaded config.
// Unset variables leave the file/default values in place.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRACKER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRACKER_GATEWAY_DRIVER"); v != "" {
		c.Gateway.Driver = v
	}
	if v := os.Getenv("TRACKER_SQLITE_PATH"); v != "" {
		c.Gateway.SQLitePath = v
	}
	if v := os.Getenv("TRACKER_POSTGRES_DSN"); v != "" {
		c.Gateway.PostgresDSN = v
	}
	if v := os.Getenv("TRACKER_OBJECTS_DRIVER"); v != "" {
		c.Objects.Driver = v
	}
	if v := os.Getenv("TRACKER_MEDIA_DIR"); v != "" {
		c.Objects.Dir = v
	}
	if v := os.Getenv("TRACKER_GCS_BUCKET"); v != "" {
		c.Objects.GCS.Bucket = v
	}
	if v := os.Getenv("TRACKER_GCS_CREDENTIALS"); v != "" {
		c.Objects.GCS.CredentialsFile = v
	}
	if v := getEnvInt("TRACKER_UNDO_GRACE_MS"); v > 0 {
		c.Undo.GraceMS = v
	}
	if v := getEnvInt("TRACKER_UPLOAD_MAX_BYTES"); v > 0 {
		c.Uploads.MaxBytes = int64(v)
	}
	switch os.Getenv("TRACKER_DEV_EXPOSE_CODE") {
	case "1", "true", "yes":
		c.Auth.DevExposeCode = true
	}
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}
