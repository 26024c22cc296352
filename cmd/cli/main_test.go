package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostudio/internal/testkit"
)

func writeCustomers(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "customers.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, testkit.WriteCSV(f, testkit.NewCustomerDataGenerator(testkit.DefaultCustomerConfig()).Generate()))
	return path
}

func TestRunProfile(t *testing.T) {
	var out bytes.Buffer
	err := runProfile(context.Background(), &out, runOptions{fileName: writeCustomers(t), timeout: time.Minute})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Dataset: customers.csv")
	assert.Contains(t, out.String(), "COLUMN")
	assert.Contains(t, out.String(), "impute_median:satisfaction")
}

func TestRunAnalyze_Drivers(t *testing.T) {
	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, runOptions{
		fileName: writeCustomers(t),
		goal:     "What drives revenue?",
		top:      5,
		timeout:  time.Minute,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Drivers of revenue")
	assert.Contains(t, out.String(), "region")
}

func TestRunAnalyze_PlanWithSnapshotFile(t *testing.T) {
	var out bytes.Buffer
	err := runAnalyze(context.Background(), &out, runOptions{
		fileName: writeCustomers(t),
		goal:     "Give me an overview of the data",
		dbPath:   filepath.Join(t.TempDir(), "cli.db"),
		timeout:  time.Minute,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Plan results:")
	assert.Contains(t, out.String(), "steps succeeded")
}

func TestRunAnalyze_MissingFile(t *testing.T) {
	err := runAnalyze(context.Background(), &bytes.Buffer{}, runOptions{
		fileName: filepath.Join(t.TempDir(), "nope.csv"),
		goal:     "What drives revenue?",
		timeout:  time.Minute,
	})
	assert.Error(t, err)
}
