package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildSeries(t *testing.T) {
	at := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "FL-CSR-08-26-", BuildSeries("FL", "CSR", at))
	require.Equal(t, "FL-CSD-01-30-", BuildSeries("FL", "CSD", time.Date(2030, time.January, 2, 0, 0, 0, 0, time.UTC)))
}
