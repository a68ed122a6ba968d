package donor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/maternal-guard-server/internal/domain"
)

// SampleDataset returns the built-in demonstration donor list in dataset
// order. Each call returns a fresh slice.
func SampleDataset() []domain.DonorRecord {
	return []domain.DonorRecord{
		{Name: "Asha", BloodGroup: domain.BloodGroupONeg, Age: 22, Hemoglobin: 13.5, Status: domain.DonorAvailable},
		{Name: "Rahul", BloodGroup: domain.BloodGroupAPos, Age: 25, Hemoglobin: 11.8, Status: domain.DonorAvailable},
		{Name: "Priya", BloodGroup: domain.BloodGroupBPos, Age: 30, Hemoglobin: 14.2, Status: domain.DonorUnavailable},
		{Name: "Kiran", BloodGroup: domain.BloodGroupABPos, Age: 28, Hemoglobin: 12.9, Status: domain.DonorAvailable},
		{Name: "Meena", BloodGroup: domain.BloodGroupOPos, Age: 35, Hemoglobin: 13.0, Status: domain.DonorAvailable},
		{Name: "Arjun", BloodGroup: domain.BloodGroupANeg, Age: 40, Hemoglobin: 15.1, Status: domain.DonorAvailable},
		{Name: "Divya", BloodGroup: domain.BloodGroupBNeg, Age: 27, Hemoglobin: 10.5, Status: domain.DonorAvailable},
		{Name: "Ravi", BloodGroup: domain.BloodGroupONeg, Age: 24, Hemoglobin: 14.0, Status: domain.DonorAvailable},
	}
}

// LoadDataset reads a JSON array of donor records from path. Every record
// is validated; the first invalid record fails the load.
func LoadDataset(path string) ([]domain.DonorRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read donor dataset: %w", err)
	}

	var donors []domain.DonorRecord
	if err := json.Unmarshal(data, &donors); err != nil {
		return nil, fmt.Errorf("failed to parse donor dataset %s: %w", path, err)
	}

	for i := range donors {
		if err := donors[i].Validate(); err != nil {
			return nil, fmt.Errorf("donor record %d: %w", i, err)
		}
	}
	return donors, nil
}

// LoadDatasetOrSample loads path when set and falls back to SampleDataset
// otherwise.
func LoadDatasetOrSample(path string) ([]domain.DonorRecord, error) {
	if path == "" {
		return SampleDataset(), nil
	}
	return LoadDataset(path)
}
