package donor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maternal-guard-server/internal/domain"
)

func names(donors []domain.DonorRecord) []string {
	out := make([]string, 0, len(donors))
	for _, d := range donors {
		out = append(out, d.Name)
	}
	return out
}

func TestFindCompatibleDonors_SampleDataset(t *testing.T) {
	filter := NewSampleFilter(logrus.New())

	tests := []struct {
		recipient domain.BloodGroup
		want      []string
	}{
		{domain.BloodGroupONeg, []string{"Asha", "Ravi"}},
		{domain.BloodGroupOPos, []string{"Asha", "Meena", "Ravi"}},
		{domain.BloodGroupANeg, []string{"Asha", "Arjun", "Ravi"}},
		{domain.BloodGroupAPos, []string{"Asha", "Meena", "Arjun", "Ravi"}},
		{domain.BloodGroupBNeg, []string{"Asha", "Ravi"}},
		{domain.BloodGroupBPos, []string{"Asha", "Meena", "Ravi"}},
		{domain.BloodGroupABNeg, []string{"Asha", "Arjun", "Ravi"}},
		{domain.BloodGroupABPos, []string{"Asha", "Kiran", "Meena", "Arjun", "Ravi"}},
	}

	for _, tt := range tests {
		t.Run(tt.recipient.String(), func(t *testing.T) {
			got, err := filter.FindCompatibleDonors(tt.recipient)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestFindCompatibleDonors_Exhaustive(t *testing.T) {
	filter := NewSampleFilter(nil)
	table := StandardCompatibility()
	dataset := SampleDataset()

	for _, recipient := range domain.AllBloodGroups() {
		t.Run(recipient.String(), func(t *testing.T) {
			got, err := filter.FindCompatibleDonors(recipient)
			require.NoError(t, err)

			want := []string{}
			for _, d := range dataset {
				if table.Accepts(recipient, d.BloodGroup) &&
					d.Hemoglobin > 12.5 &&
					d.Age >= 18 && d.Age <= 50 &&
					d.Status == domain.DonorAvailable {
					want = append(want, d.Name)
				}
			}
			assert.Equal(t, want, names(got))

			for _, d := range got {
				assert.Greater(t, d.Hemoglobin, 12.5)
				assert.Equal(t, domain.DonorAvailable, d.Status)
			}
		})
	}
}

func TestFindCompatibleDonors_Idempotent(t *testing.T) {
	filter := NewSampleFilter(nil)

	first, err := filter.FindCompatibleDonors(domain.BloodGroupAPos)
	require.NoError(t, err)
	second, err := filter.FindCompatibleDonors(domain.BloodGroupAPos)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFindCompatibleDonors_EmptyIsNotError(t *testing.T) {
	donors := []domain.DonorRecord{
		{Name: "Low Hb", BloodGroup: domain.BloodGroupONeg, Age: 30, Hemoglobin: 12.5, Status: domain.DonorAvailable},
		{Name: "Too Young", BloodGroup: domain.BloodGroupONeg, Age: 17, Hemoglobin: 14, Status: domain.DonorAvailable},
		{Name: "Too Old", BloodGroup: domain.BloodGroupONeg, Age: 51, Hemoglobin: 14, Status: domain.DonorAvailable},
		{Name: "Away", BloodGroup: domain.BloodGroupONeg, Age: 30, Hemoglobin: 14, Status: domain.DonorUnavailable},
		{Name: "Wrong Group", BloodGroup: domain.BloodGroupAPos, Age: 30, Hemoglobin: 14, Status: domain.DonorAvailable},
	}
	filter := NewFilter(donors, StandardCompatibility(), nil)

	got, err := filter.FindCompatibleDonors(domain.BloodGroupONeg)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindCompatibleDonors_BoundaryAges(t *testing.T) {
	donors := []domain.DonorRecord{
		{Name: "Eighteen", BloodGroup: domain.BloodGroupONeg, Age: 18, Hemoglobin: 13, Status: domain.DonorAvailable},
		{Name: "Fifty", BloodGroup: domain.BloodGroupONeg, Age: 50, Hemoglobin: 13, Status: domain.DonorAvailable},
	}
	filter := NewFilter(donors, StandardCompatibility(), nil)

	got, err := filter.FindCompatibleDonors(domain.BloodGroupONeg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Eighteen", "Fifty"}, names(got))
}

func TestFindCompatibleDonors_UnknownGroup(t *testing.T) {
	filter := NewSampleFilter(nil)

	_, err := filter.FindCompatibleDonors(domain.BloodGroup("XY+"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNewFilter_CopiesDataset(t *testing.T) {
	donors := SampleDataset()
	filter := NewFilter(donors, StandardCompatibility(), nil)

	donors[0].Status = domain.DonorUnavailable

	got, err := filter.FindCompatibleDonors(domain.BloodGroupONeg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Asha", "Ravi"}, names(got))
}

func TestPredicates(t *testing.T) {
	d := domain.DonorRecord{Name: "x", BloodGroup: domain.BloodGroupBPos, Age: 18, Hemoglobin: 12.6, Status: domain.DonorAvailable}

	assert.True(t, All()(d))
	assert.True(t, GroupIn([]domain.BloodGroup{domain.BloodGroupBPos})(d))
	assert.False(t, GroupIn(nil)(d))
	assert.True(t, HemoglobinAbove(12.5)(d))
	assert.False(t, HemoglobinAbove(12.6)(d))
	assert.True(t, AgeBetween(18, 50)(d))
	assert.True(t, MedicallyEligible()(d))
	assert.False(t, All(Available(), AgeBetween(19, 50))(d))
}

func TestStandardCompatibility(t *testing.T) {
	table := StandardCompatibility()
	require.NoError(t, table.Validate())

	all, err := table.Allowed(domain.BloodGroupABPos)
	require.NoError(t, err)
	assert.ElementsMatch(t, domain.AllBloodGroups(), all)

	for _, g := range domain.AllBloodGroups() {
		assert.True(t, table.Accepts(g, domain.BloodGroupONeg), "O- donates to %s", g)
		assert.True(t, table.Accepts(g, g), "%s accepts itself", g)
	}
	assert.False(t, table.Accepts(domain.BloodGroupONeg, domain.BloodGroupOPos))

	allowed, err := table.Allowed(domain.BloodGroupONeg)
	require.NoError(t, err)
	allowed[0] = domain.BloodGroupABPos
	assert.Equal(t, []domain.BloodGroup{domain.BloodGroupONeg}, table[domain.BloodGroupONeg])

	delete(table, domain.BloodGroupAPos)
	assert.Error(t, table.Validate())
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "donors.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
		{"name":"Lata","blood_group":"B+","age":33,"hemoglobin":13.4,"status":"Available"}
	]`), 0o644))

	donors, err := LoadDataset(good)
	require.NoError(t, err)
	require.Len(t, donors, 1)
	assert.Equal(t, domain.BloodGroupBPos, donors[0].BloodGroup)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name":"X","blood_group":"Q","age":33,"hemoglobin":13,"status":"Available"}]`), 0o644))
	_, err = LoadDataset(bad)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = LoadDataset(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	sample, err := LoadDatasetOrSample("")
	require.NoError(t, err)
	assert.Len(t, sample, 8)
}
