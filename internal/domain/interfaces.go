package domain

import (
	"context"
)

// RiskModel is the opaque pretrained classifier boundary. Implementations
// must be safe for concurrent use and must not mutate their state on
// prediction.
type RiskModel interface {
	// PredictProba returns p(Low), p(Mid), p(High) for one feature vector.
	PredictProba(features FeatureVector) ClassProbabilities
	// FeatureImportances returns one non-negative weight per feature, in
	// Features() order.
	FeatureImportances() FeatureVector
}

// RiskAssessor produces a RiskAssessment from validated vitals.
type RiskAssessor interface {
	AssessRisk(vitals *PatientVitals) (*RiskAssessment, error)
}

// DonorFinder returns the medically eligible, blood-compatible donors for a
// recipient group.
type DonorFinder interface {
	FindCompatibleDonors(recipient BloodGroup) ([]DonorRecord, error)
	CompatibleGroups(recipient BloodGroup) ([]BloodGroup, error)
}

// AssessmentCache keeps recent assessment outputs by ID so that clinician
// feedback can be tied to what the service actually produced.
type AssessmentCache interface {
	Get(ctx context.Context, id string) (*RiskAssessment, bool)
	Set(ctx context.Context, assessment *RiskAssessment) error
	Stats() CacheStats
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Items     int    `json:"items"`
	Evictions int64  `json:"evictions"`
	Backend   string `json:"backend"`
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
