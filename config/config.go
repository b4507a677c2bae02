// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/tworank/dataset"
	"github.com/gorse-io/tworank/model/cf"
	"github.com/gorse-io/tworank/model/ltr"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	StoragePOSIX = "posix"
	StorageS3    = "s3"
	StorageGCS   = "gcs"
	StorageAzure = "azure"
)

// Config is the configuration for the pipeline and the server.
type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
}

// DataConfig is the configuration for ingestion and splitting.
type DataConfig struct {
	RawDataPath       string           `mapstructure:"raw_data_path"`
	ProcessedDataPath string           `mapstructure:"processed_data_path"`
	MinRating         float64          `mapstructure:"min_rating" validate:"gte=0"`
	TestDays          int              `mapstructure:"test_days" validate:"gte=0"`
	FieldMap          dataset.FieldMap `mapstructure:"field_map"`
}

// RetrievalConfig is the configuration for the ALS retrieval model.
type RetrievalConfig struct {
	cf.Params    `mapstructure:",squash"`
	ArtifactPath string `mapstructure:"artifact_path"`
}

// RankingConfig is the configuration for the LambdaMART ranker.
type RankingConfig struct {
	ltr.Params   `mapstructure:",squash"`
	NNegatives   int    `mapstructure:"n_negatives" validate:"gte=0"`
	ArtifactPath string `mapstructure:"artifact_path"`
}

// EvaluationConfig is the configuration for offline evaluation.
type EvaluationConfig struct {
	K int `mapstructure:"k" validate:"gt=0"`
}

// StorageConfig selects where artifacts live.
type StorageConfig struct {
	Type  string          `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	Dir   string          `mapstructure:"dir"`
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// ServerConfig is the configuration for the recommendation server.
type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	NCandidates      int           `mapstructure:"n_candidates" validate:"gt=0"`
	DefaultTopK      int           `mapstructure:"default_top_k" validate:"gt=0"`
	LinkTemplate     string        `mapstructure:"link_template"`
	ImageTemplate    string        `mapstructure:"image_template"`
	PlaceholderImage string        `mapstructure:"placeholder_image"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			RawDataPath:       "data/raw/reviews.json",
			ProcessedDataPath: "processed",
			MinRating:         4,
			TestDays:          30,
			FieldMap:          dataset.DefaultFieldMap,
		},
		Retrieval: RetrievalConfig{
			Params:       cf.DefaultParams(),
			ArtifactPath: "models",
		},
		Ranking: RankingConfig{
			Params:       ltr.DefaultParams(),
			NNegatives:   ltr.DefaultNegatives,
			ArtifactPath: "models",
		},
		Evaluation: EvaluationConfig{
			K: 40,
		},
		Storage: StorageConfig{
			Type: StoragePOSIX,
			Dir:  "data",
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			NCandidates:      50,
			DefaultTopK:      10,
			LinkTemplate:     "https://www.amazon.com/dp/%s",
			ImageTemplate:    "http://images.amazon.com/images/P/%s.01._SS200_.jpg",
			PlaceholderImage: "https://via.placeholder.com/150",
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [data]
	v.SetDefault("data.raw_data_path", defaultConfig.Data.RawDataPath)
	v.SetDefault("data.processed_data_path", defaultConfig.Data.ProcessedDataPath)
	v.SetDefault("data.min_rating", defaultConfig.Data.MinRating)
	v.SetDefault("data.test_days", defaultConfig.Data.TestDays)
	v.SetDefault("data.field_map.user", defaultConfig.Data.FieldMap.User)
	v.SetDefault("data.field_map.item", defaultConfig.Data.FieldMap.Item)
	v.SetDefault("data.field_map.rating", defaultConfig.Data.FieldMap.Rating)
	v.SetDefault("data.field_map.time", defaultConfig.Data.FieldMap.Time)
	// [retrieval]
	v.SetDefault("retrieval.factors", defaultConfig.Retrieval.Factors)
	v.SetDefault("retrieval.iterations", defaultConfig.Retrieval.Iterations)
	v.SetDefault("retrieval.regularization", defaultConfig.Retrieval.Regularization)
	v.SetDefault("retrieval.alpha", defaultConfig.Retrieval.Alpha)
	v.SetDefault("retrieval.seed", defaultConfig.Retrieval.Seed)
	v.SetDefault("retrieval.init_std_dev", defaultConfig.Retrieval.InitStdDev)
	v.SetDefault("retrieval.jobs", defaultConfig.Retrieval.Jobs)
	v.SetDefault("retrieval.artifact_path", defaultConfig.Retrieval.ArtifactPath)
	// [ranking]
	v.SetDefault("ranking.n_estimators", defaultConfig.Ranking.NEstimators)
	v.SetDefault("ranking.learning_rate", defaultConfig.Ranking.LearningRate)
	v.SetDefault("ranking.num_leaves", defaultConfig.Ranking.NumLeaves)
	v.SetDefault("ranking.min_data_in_leaf", defaultConfig.Ranking.MinDataInLeaf)
	v.SetDefault("ranking.bagging_fraction", defaultConfig.Ranking.BaggingFraction)
	v.SetDefault("ranking.truncation_level", defaultConfig.Ranking.TruncationLevel)
	v.SetDefault("ranking.seed", defaultConfig.Ranking.Seed)
	v.SetDefault("ranking.verbose", defaultConfig.Ranking.Verbose)
	v.SetDefault("ranking.jobs", defaultConfig.Ranking.Jobs)
	v.SetDefault("ranking.n_negatives", defaultConfig.Ranking.NNegatives)
	v.SetDefault("ranking.artifact_path", defaultConfig.Ranking.ArtifactPath)
	// [evaluation]
	v.SetDefault("evaluation.k", defaultConfig.Evaluation.K)
	// [storage]
	v.SetDefault("storage.type", defaultConfig.Storage.Type)
	v.SetDefault("storage.dir", defaultConfig.Storage.Dir)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_ssl", false)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.gcs.credentials_file", "")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "")
	v.SetDefault("storage.azure.connection_string", "")
	v.SetDefault("storage.azure.account_name", "")
	v.SetDefault("storage.azure.account_key", "")
	v.SetDefault("storage.azure.endpoint", "")
	v.SetDefault("storage.azure.container", "")
	v.SetDefault("storage.azure.prefix", "")
	// [server]
	v.SetDefault("server.host", defaultConfig.Server.Host)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("server.n_candidates", defaultConfig.Server.NCandidates)
	v.SetDefault("server.default_top_k", defaultConfig.Server.DefaultTopK)
	v.SetDefault("server.link_template", defaultConfig.Server.LinkTemplate)
	v.SetDefault("server.image_template", defaultConfig.Server.ImageTemplate)
	v.SetDefault("server.placeholder_image", defaultConfig.Server.PlaceholderImage)
	v.SetDefault("server.shutdown_timeout", defaultConfig.Server.ShutdownTimeout)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefault(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix("TWORANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from a TOML file. An empty path loads defaults.
// Environment variables named TWORANK_<SECTION>_<KEY> override the file.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks the value ranges of the configuration.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "config")
	}
	return nil
}
