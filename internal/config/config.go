package config

import "fmt"

const defaultSqlDsn = "root:123456@tcp(127.0.0.1:3306)/streetsight?charset=utf8mb4&parseTime=True&loc=Local"

type DBConfig struct {
	DSN          string `yaml:"dsn"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxLifetime  int    `yaml:"maxLifetime"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Region          string `yaml:"region"`
	// UrlPrefixOverride replaces the derived public URL prefix when the
	// bucket is fronted by a CDN or an S3 website endpoint.
	UrlPrefixOverride string `yaml:"urlPrefix"`
}

func (s3 *S3Config) UrlPrefix() string {
	if s3.UrlPrefixOverride != "" {
		return s3.UrlPrefixOverride
	}
	if s3.UseSSL {
		return fmt.Sprintf("https://%s/%s", s3.Endpoint, s3.Bucket)
	}
	return fmt.Sprintf("http://%s/%s", s3.Endpoint, s3.Bucket)
}

// GoogleConfig holds the street imagery and reverse geocoding endpoints.
// Base URLs are configurable so tests can point them at a mock server.
type GoogleConfig struct {
	APIKey        string `yaml:"apiKey"`
	StreetViewURL string `yaml:"streetViewURL"`
	GeocodeURL    string `yaml:"geocodeURL"`
	Size          string `yaml:"size"`
	FOV           int    `yaml:"fov"`
	Pitch         int    `yaml:"pitch"`
}

type TritonConfig struct {
	ServerAddr string `yaml:"serverAddr"`
	// EnsembleModels maps a single-class model name to the label its
	// detections carry, e.g. graffiti: "a graffiti vandalism".
	EnsembleModels map[string]string `yaml:"ensembleModels"`
	// OpenVocabModel is an open-vocabulary grounding model driven by the
	// runtime label list.
	OpenVocabModel string `yaml:"openVocabModel"`
}

type VLMConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"apiKey"`
	ModelName string `yaml:"modelName"`
}

type NSQConfig struct {
	NSQDAddr string `yaml:"nsqdAddr"`
	Topic    string `yaml:"topic"`
	Enabled  bool   `yaml:"enabled"`
}

type DetectionConfig struct {
	// Labels is the vocabulary handed to open-vocabulary backends.
	Labels []string `yaml:"labels"`
	// AllowedKeywords is the case-insensitive substring allow-list applied
	// to every backend's output.
	AllowedKeywords []string `yaml:"allowedKeywords"`
	ScoreThreshold  float32  `yaml:"scoreThreshold"`
	// AlignThreshold gates the caption/label alignment re-ranking stage.
	AlignThreshold float32 `yaml:"alignThreshold"`
}

type PipelineConfig struct {
	Workers         int `yaml:"workers"`
	FetchTimeoutS   int `yaml:"fetchTimeout"`
	GeocodeTimeoutS int `yaml:"geocodeTimeout"`
	DetectTimeoutS  int `yaml:"detectTimeout"`
	UploadTimeoutS  int `yaml:"uploadTimeout"`
}

type Config struct {
	Addr      string          `yaml:"addr"`
	SSLCert   string          `yaml:"sslCert"`
	SSLKey    string          `yaml:"sslKey"`
	CacheDir  string          `yaml:"cacheDir"`
	DB        DBConfig        `yaml:"db"`
	S3        S3Config        `yaml:"s3"`
	Google    GoogleConfig    `yaml:"google"`
	Triton    TritonConfig    `yaml:"triton"`
	VLM       VLMConfig       `yaml:"vlm"`
	NSQ       NSQConfig       `yaml:"nsq"`
	Detection DetectionConfig `yaml:"detection"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr:     "127.0.0.1:8081",
		CacheDir: "var/cache",
		DB: DBConfig{
			DSN:          defaultSqlDsn,
			MaxIdleConns: 100,
			MaxOpenConns: 1000,
			MaxLifetime:  60,
		},
		S3: S3Config{
			Bucket:   "streetsight",
			Endpoint: "127.0.0.1:9000",
			UseSSL:   false,
			Region:   "us-east-1",
		},
		Google: GoogleConfig{
			StreetViewURL: "https://maps.googleapis.com/maps/api/streetview",
			GeocodeURL:    "https://maps.googleapis.com/maps/api/geocode/json",
			Size:          "640x640",
			FOV:           90,
			Pitch:         0,
		},
		Triton: TritonConfig{
			ServerAddr:     "127.0.0.1:8001",
			OpenVocabModel: "grounding_dino",
			EnsembleModels: map[string]string{
				"graffiti":    "a graffiti vandalism",
				"homeless":    "a tent on the sidewalk",
				"road_damage": "a crack on the road",
			},
		},
		NSQ: NSQConfig{
			NSQDAddr: "127.0.0.1:4150",
			Topic:    "detection_tasks",
		},
		Detection: DetectionConfig{
			Labels: []string{
				"a graffiti vandalism",
				"a hole on the road",
				"a crack on the road",
				"a tent on the sidewalk",
			},
			AllowedKeywords: []string{"graffiti", "hole", "crack", "tent", "trash", "damage"},
			ScoreThreshold:  0.4,
			AlignThreshold:  0.3,
		},
		Pipeline: PipelineConfig{
			Workers:         1,
			FetchTimeoutS:   15,
			GeocodeTimeoutS: 10,
			DetectTimeoutS:  60,
			UploadTimeoutS:  30,
		},
	}
}
