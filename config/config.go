package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAllowedExtensions = "jpg,jpeg,png,gif"
	defaultFaceAPITimeout    = 30
	defaultTokenTTLHours     = 24
)

type Config struct {
	// filesystem blob store holding image bytes and detection cache documents
	StoragePath string

	// database path
	DatabasePath string

	// uploaded file extensions accepted by the gallery (lowercase, no dot)
	AllowedExtensions map[string]bool

	// external face detection service
	FaceAPIURL     string
	FaceAPIKey     string
	FaceAPITimeout time.Duration

	// auth token settings
	TokenSecret []byte
	TokenTTL    time.Duration
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func parseExtensionList(raw string) map[string]bool {
	allowed := make(map[string]bool)
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
		if ext != "" {
			allowed[ext] = true
		}
	}
	return allowed
}

func LoadConfig() (Config, error) {
	storage := getEnvOrDefault("STORAGE_PATH", filepath.Join(".", "image_bank"))
	absStorage, err := filepath.Abs(storage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for storage '%s': %w", storage, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "imagebank.db")

	allowed := parseExtensionList(getEnvOrDefault("ALLOWED_EXTENSIONS", defaultAllowedExtensions))
	if len(allowed) == 0 {
		return Config{}, fmt.Errorf("ALLOWED_EXTENSIONS resolved to an empty list")
	}

	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		return Config{}, fmt.Errorf("TOKEN_SECRET must be set")
	}

	faceURL := os.Getenv("FACE_API_URL")
	faceKey := os.Getenv("FACE_API_KEY")
	if faceURL == "" || faceKey == "" {
		log.Printf("Warning: FACE_API_URL/FACE_API_KEY not set, cloud face detection will be unavailable")
	}

	cfg := Config{
		StoragePath:       absStorage,
		DatabasePath:      dbPath,
		AllowedExtensions: allowed,
		FaceAPIURL:        faceURL,
		FaceAPIKey:        faceKey,
		FaceAPITimeout:    time.Duration(getEnvIntOrDefault("FACE_API_TIMEOUT_SECONDS", defaultFaceAPITimeout)) * time.Second,
		TokenSecret:       []byte(secret),
		TokenTTL:          time.Duration(getEnvIntOrDefault("TOKEN_TTL_HOURS", defaultTokenTTLHours)) * time.Hour,
	}

	return cfg, nil
}
