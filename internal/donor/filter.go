package donor

import (
	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/domain"
)

// Medical eligibility thresholds for donation.
const (
	// MinHemoglobin is exclusive: a donor must be strictly above it.
	MinHemoglobin = 12.5
	MinDonorAge   = 18
	MaxDonorAge   = 50
)

// Predicate decides whether a single donor qualifies.
type Predicate func(d domain.DonorRecord) bool

// All combines predicates with logical AND. An empty list accepts every
// donor.
func All(preds ...Predicate) Predicate {
	return func(d domain.DonorRecord) bool {
		for _, p := range preds {
			if !p(d) {
				return false
			}
		}
		return true
	}
}

// GroupIn accepts donors whose group is one of groups.
func GroupIn(groups []domain.BloodGroup) Predicate {
	set := make(map[domain.BloodGroup]struct{}, len(groups))
	for _, g := range groups {
		set[g] = struct{}{}
	}
	return func(d domain.DonorRecord) bool {
		_, ok := set[d.BloodGroup]
		return ok
	}
}

// HemoglobinAbove accepts donors with hemoglobin strictly greater than min.
func HemoglobinAbove(min float64) Predicate {
	return func(d domain.DonorRecord) bool { return d.Hemoglobin > min }
}

// AgeBetween accepts donors aged min to max inclusive.
func AgeBetween(min, max int) Predicate {
	return func(d domain.DonorRecord) bool { return d.Age >= min && d.Age <= max }
}

// Available accepts donors currently available.
func Available() Predicate {
	return func(d domain.DonorRecord) bool { return d.Status == domain.DonorAvailable }
}

// MedicallyEligible is the donation eligibility rule independent of blood
// group.
func MedicallyEligible() Predicate {
	return All(HemoglobinAbove(MinHemoglobin), AgeBetween(MinDonorAge, MaxDonorAge), Available())
}

// Filter selects eligible, compatible donors from a fixed dataset. It holds
// no mutable state and is safe for concurrent use.
type Filter struct {
	donors []domain.DonorRecord
	table  CompatibilityTable
	logger *logrus.Logger
}

// NewFilter creates a Filter over donors and table. The dataset is copied
// so later changes by the caller are not observed.
func NewFilter(donors []domain.DonorRecord, table CompatibilityTable, logger *logrus.Logger) *Filter {
	if logger == nil {
		logger = logrus.New()
	}
	ds := make([]domain.DonorRecord, len(donors))
	copy(ds, donors)
	return &Filter{donors: ds, table: table, logger: logger}
}

// NewSampleFilter creates a Filter over the built-in dataset and the
// standard compatibility table.
func NewSampleFilter(logger *logrus.Logger) *Filter {
	return NewFilter(SampleDataset(), StandardCompatibility(), logger)
}

// CompatibleGroups returns the donor groups recipient can receive from.
func (f *Filter) CompatibleGroups(recipient domain.BloodGroup) ([]domain.BloodGroup, error) {
	return f.table.Allowed(recipient)
}

// FindCompatibleDonors returns every donor in the dataset that is blood
// compatible with recipient and medically eligible, in dataset order. When
// nobody qualifies the result is an empty, non-nil slice.
func (f *Filter) FindCompatibleDonors(recipient domain.BloodGroup) ([]domain.DonorRecord, error) {
	allowed, err := f.table.Allowed(recipient)
	if err != nil {
		return nil, err
	}

	eligible := All(GroupIn(allowed), MedicallyEligible())

	result := make([]domain.DonorRecord, 0, len(f.donors))
	for _, d := range f.donors {
		if eligible(d) {
			result = append(result, d)
		}
	}

	f.logger.WithFields(logrus.Fields{
		"recipient_group": recipient.String(),
		"allowed_groups":  len(allowed),
		"eligible_count":  len(result),
	}).Debug("Filtered donor dataset")

	return result, nil
}

// Donors returns a copy of the underlying dataset.
func (f *Filter) Donors() []domain.DonorRecord {
	out := make([]domain.DonorRecord, len(f.donors))
	copy(out, f.donors)
	return out
}
