package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "../../models/maternal_risk_model.json"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MATERNAL_GUARD_DATA_DIR", t.TempDir())
	t.Setenv("MATERNAL_GUARD_MODEL_PATH", testModel)
	t.Setenv("MATERNAL_GUARD_DONORS_FILE", "")
	if _, ok := os.LookupEnv("MATERNAL_GUARD_HIGH_RISK_THRESHOLD"); !ok {
		t.Setenv("MATERNAL_GUARD_HIGH_RISK_THRESHOLD", "")
	}

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func donorNames(t *testing.T, body []byte) []string {
	t.Helper()
	var view struct {
		Donors []struct {
			Name string `json:"name"`
		} `json:"donors"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	names := []string{}
	for _, d := range view.Donors {
		names = append(names, d.Name)
	}
	return names
}

func TestDonors(t *testing.T) {
	tests := []struct {
		group string
		want  []string
	}{
		{"O-", []string{"Asha", "Ravi"}},
		{"B+", []string{"Asha", "Meena", "Ravi"}},
		{"AB+", []string{"Asha", "Kiran", "Meena", "Arjun", "Ravi"}},
	}

	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			out, err := run(t, "donors", "-b", tt.group, "-o", "json")
			require.NoError(t, err)
			assert.Equal(t, tt.want, donorNames(t, []byte(out)))
		})
	}
}

func TestDonors_Table(t *testing.T) {
	out, err := run(t, "donors", "--blood-group", "O-")
	require.NoError(t, err)

	assert.Contains(t, out, "Only medically eligible and blood-compatible donors are shown.")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Asha")
	assert.Contains(t, out, "Ravi")
	assert.NotContains(t, out, "Meena")
}

func TestDonors_Errors(t *testing.T) {
	_, err := run(t, "donors", "-b", "Z+")
	assert.Error(t, err)

	_, err = run(t, "donors")
	assert.Error(t, err)

	_, err = run(t, "donors", "-b", "O-", "-o", "yaml")
	assert.Error(t, err)
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantLevel string
		wantText  string
	}{
		{
			name:      "low",
			args:      []string{"--age", "25", "--systolic-bp", "110", "--diastolic-bp", "70", "--blood-sugar", "6.5", "--body-temp", "98", "--heart-rate", "70", "-b", "A+"},
			wantLevel: "Low",
			wantText:  "Low Risk Detected",
		},
		{
			name:      "downgraded",
			args:      []string{"--age", "28", "--systolic-bp", "130", "--diastolic-bp", "85", "--blood-sugar", "10", "--body-temp", "99", "--heart-rate", "85", "-b", "B+"},
			wantLevel: "Mid",
			wantText:  "below the High-risk threshold",
		},
		{
			name:      "high",
			args:      []string{"--age", "35", "--systolic-bp", "160", "--diastolic-bp", "110", "--blood-sugar", "15", "--body-temp", "101", "--heart-rate", "95", "-b", "O-"},
			wantLevel: "High",
			wantText:  "Emergency Donor Dispatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"assess"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "Risk level:  "+tt.wantLevel)
			assert.Contains(t, out, tt.wantText)

			out, err = run(t, append([]string{"assess", "-o", "json"}, tt.args...)...)
			require.NoError(t, err)
			var view struct {
				Assessment struct {
					Level string `json:"risk_level"`
				} `json:"assessment"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &view))
			assert.Equal(t, tt.wantLevel, view.Assessment.Level)
		})
	}
}

func TestAssess_ThresholdFlag(t *testing.T) {
	args := []string{"assess", "--threshold", "0.5", "--age", "28", "--systolic-bp", "130", "--diastolic-bp", "85",
		"--blood-sugar", "10", "--body-temp", "99", "--heart-rate", "85", "-b", "B+"}

	out, err := run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Risk level:  High")
}

func TestAssess_InvalidThreshold(t *testing.T) {
	vitals := []string{"--age", "28", "--systolic-bp", "130", "--diastolic-bp", "85",
		"--blood-sugar", "10", "--body-temp", "99", "--heart-rate", "85", "-b", "B+"}

	tests := []struct {
		name    string
		env     string
		flag    string
		wantErr string
	}{
		{"flag above one", "", "1.5", "--threshold"},
		{"flag zero", "", "0", "--threshold"},
		{"env above one", "1.5", "", "high_risk_threshold"},
		{"env not a number", "high", "", "MATERNAL_GUARD_HIGH_RISK_THRESHOLD"},
		{"valid flag overrides bad env", "high", "0.9", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MATERNAL_GUARD_HIGH_RISK_THRESHOLD", tt.env)
			args := append([]string{"assess"}, vitals...)
			if tt.flag != "" {
				args = append(args, "--threshold", tt.flag)
			}

			_, err := run(t, args...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssess_InvalidVitals(t *testing.T) {
	_, err := run(t, "assess", "--age", "12", "--systolic-bp", "110", "--diastolic-bp", "70",
		"--blood-sugar", "6.5", "--body-temp", "98", "--heart-rate", "70", "-b", "A+")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "age")

	_, err = run(t, "assess", "--age", "25")
	assert.Error(t, err)
}

func TestBloodGroups(t *testing.T) {
	out, err := run(t, "blood-groups", "-o", "json")
	require.NoError(t, err)

	var table map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &table))
	assert.Len(t, table, 8)
	assert.Equal(t, []string{"O-"}, table["O-"])
	assert.Len(t, table["AB+"], 8)
}

func TestModelValidate(t *testing.T) {
	out, err := run(t, "model", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "maternal-risk-softmax")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name":"x"}`), 0644))
	_, err = run(t, "model", "validate", "--path", bad)
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	clientConfig := filepath.Join(t.TempDir(), "client.json")

	out, err := run(t, "status", "--client-config", clientConfig, "-o", "json")
	require.NoError(t, err)

	var report struct {
		Model struct {
			Name string `json:"name"`
		} `json:"model"`
		Donors   int `json:"donors"`
		Feedback any `json:"feedback"`
		Client   struct {
			Registered bool `json:"registered"`
		} `json:"mcp_client"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "maternal-risk-softmax", report.Model.Name)
	assert.Equal(t, 8, report.Donors)
	assert.Nil(t, report.Feedback)
	assert.False(t, report.Client.Registered)
}

func TestSetupRegister(t *testing.T) {
	dir := t.TempDir()
	clientConfig := filepath.Join(dir, "client.json")
	binary := filepath.Join(dir, "mcp-server-lite")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	out, err := run(t, "setup", "register", "--client-config", clientConfig, "--binary", binary)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered maternal-guard")

	out, err = run(t, "setup", "status", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Registered")

	out, err = run(t, "setup", "unregister", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")
}
