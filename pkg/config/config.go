package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Qdrant    QdrantConfig
	Milvus    MilvusConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Pipeline  PipelineConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type QdrantConfig struct {
	URL             string
	APIKey          string
	Collection      string
	ImageCollection string
	DenseDim        int
	TimeoutSec      int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

type RetrievalConfig struct {
	// Provider selects the vector index backend: "qdrant" or "milvus".
	// Milvus carries dense vectors only, so hybrid mode degenerates to
	// plain dense ranking there.
	Provider      string
	TopK          int
	HybridEnabled bool
	RRFK          int
	DenseWeight   float64
	SparseWeight  float64
	ImagesEnabled bool
	ImageTopK     int
	ImageMinScore float64
}

type PipelineConfig struct {
	// Interactive switches HumanReview from automatic resolution to a
	// suspend point that waits for an external decision.
	Interactive bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/papertrail")

	viper.SetEnvPrefix("PAPERTRAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("qdrant.url", "http://localhost:6333")
	viper.SetDefault("qdrant.collection", "research_papers")
	viper.SetDefault("qdrant.imageCollection", "research_papers_images")
	viper.SetDefault("qdrant.denseDim", 768)
	viper.SetDefault("qdrant.timeoutSec", 15)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "research_papers")
	viper.SetDefault("milvus.vectorDim", 768)

	viper.SetDefault("sqlite.path", "./data/papertrail.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 768)

	viper.SetDefault("retrieval.provider", "qdrant")
	viper.SetDefault("retrieval.topK", 5)
	viper.SetDefault("retrieval.hybridEnabled", true)
	viper.SetDefault("retrieval.rrfK", 60)
	viper.SetDefault("retrieval.denseWeight", 0.5)
	viper.SetDefault("retrieval.sparseWeight", 0.5)
	viper.SetDefault("retrieval.imagesEnabled", false)
	viper.SetDefault("retrieval.imageTopK", 3)
	viper.SetDefault("retrieval.imageMinScore", 0.15)

	viper.SetDefault("pipeline.interactive", false)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
