package config

import "time"

// DefaultRouterExamples are the example phrases per backend label used to seed the router.
var DefaultRouterExamples = map[string][]string{
	"vdb":   {"查找文档内容", "历史对话查询", "笔记检索", "搜索相关资料", "Python教程", "机器学习资料"},
	"sql":   {"查询配置参数", "API接口限制", "系统设置", "数据库规则", "限制是多少", "参数配置"},
	"graph": {"谁是张三的合作者", "上下游关系", "知识图谱查询", "关系网络", "合作伙伴"},
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = cfg.Storage.DataDir + "/cache"
	}
	if cfg.Storage.MemoryDir == "" {
		cfg.Storage.MemoryDir = cfg.Storage.DataDir + "/memory"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = cfg.Storage.DataDir + "/structured.db"
	}
	if cfg.Storage.GraphPath == "" {
		cfg.Storage.GraphPath = cfg.Storage.DataDir + "/graph.json"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = cfg.Storage.DataDir + "/indices/vector"
	}
	if cfg.Storage.DocumentIndexPath == "" {
		cfg.Storage.DocumentIndexPath = cfg.Storage.DataDir + "/indices/bleve"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}

	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Vector.Qdrant.Host == "" {
		cfg.Vector.Qdrant.Host = "localhost"
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "kontext_documents"
	}

	if cfg.Router.Threshold == 0 {
		cfg.Router.Threshold = 0.1
	}
	if cfg.Router.Examples == nil {
		cfg.Router.Examples = make(map[string][]string, len(DefaultRouterExamples))
		for k, v := range DefaultRouterExamples {
			cfg.Router.Examples[k] = append([]string(nil), v...)
		}
	}
	if cfg.Router.Classifier.URL == "" {
		cfg.Router.Classifier.URL = "http://localhost:11434"
	}
	if cfg.Router.Classifier.Model == "" {
		cfg.Router.Classifier.Model = "qwen2.5:1.5b"
	}
	if cfg.Router.Classifier.Timeout == 0 {
		cfg.Router.Classifier.Timeout = 10 * time.Second
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Cache.Backends == nil {
		cfg.Cache.Backends = []string{"relational"}
	}

	if cfg.Memory.WindowSize == 0 {
		cfg.Memory.WindowSize = 10
	}
	if cfg.Memory.RecentTurns == 0 {
		cfg.Memory.RecentTurns = 3
	}

	if cfg.Fusion.TopUnconditional == 0 {
		cfg.Fusion.TopUnconditional = 3
	}
	if cfg.Fusion.DiversityWindow == 0 {
		cfg.Fusion.DiversityWindow = 2
	}
	if cfg.Fusion.MaxItems == 0 {
		cfg.Fusion.MaxItems = 8
	}
	if cfg.Fusion.Weights == nil {
		cfg.Fusion.Weights = map[string]float64{"semantic": 1.0, "structured": 1.2, "relational": 1.1}
	}

	if cfg.Compressor.TokenBudget == 0 {
		cfg.Compressor.TokenBudget = 1500
	}
	if cfg.Compressor.Estimator == "" {
		cfg.Compressor.Estimator = "chars"
	}

	if cfg.Prompt.MaxLength == 0 {
		cfg.Prompt.MaxLength = 4000
	}

	if cfg.Retrieval.SemanticK == 0 {
		cfg.Retrieval.SemanticK = 3
	}
	if cfg.Retrieval.StructuredLimit == 0 {
		cfg.Retrieval.StructuredLimit = 3
	}
	if cfg.Retrieval.RelationalLimit == 0 {
		cfg.Retrieval.RelationalLimit = 5
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
		cfg.Retrieval.SemanticWeight = 0.7
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 512
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 50
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".txt", ".md"}
	}
}

// Default returns a config with every default applied, rooted at dir.
func Default(dir string) *Config {
	cfg := &Config{Storage: StorageConfig{DataDir: "./data"}}
	ApplyDefaults(cfg)
	cfg.ExpandPaths(dir)
	return cfg
}
