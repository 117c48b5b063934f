package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClassification(t *testing.T) {
	t.Parallel()

	c := Default()
	tests := []struct {
		name string
		want Sensitivity
	}{
		{ToolFetchCustomerBooking, Safe},
		{ToolGetCustomerRiskScore, Safe},
		{ToolSearchRetentionPolicy, Safe},
		{ToolSendRetentionEmail, Sensitive},
		{ToolRequestManagerApproval, Sensitive},
		{"drop_customer_table", Sensitive},
		{"", Sensitive},
		{"Fetch_Customer_Booking", Sensitive},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, c.Classify(tc.name), "classify(%q)", tc.name)
	}
}

func TestOnlyListedNamesAreSafe(t *testing.T) {
	t.Parallel()

	c := Default()
	safe := map[string]bool{}
	for _, name := range c.SafeNames() {
		safe[name] = true
		assert.True(t, c.IsSafe(name))
	}
	for _, name := range []string{"send_sms", "issue_refund", "fetch_customer_booking_v2", ToolSendRetentionEmail} {
		require.False(t, safe[name])
		assert.Equal(t, Sensitive, c.Classify(name), name)
	}
	assert.False(t, c.IsKnown("send_sms"))
	assert.True(t, c.IsKnown(ToolRequestManagerApproval))
}

func TestNewRejectsOverlapAndBlank(t *testing.T) {
	t.Parallel()

	_, err := New([]string{"a"}, []string{"a"})
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = New([]string{" "}, nil)
	assert.ErrorIs(t, err, ErrBlankName)

	_, err = New(nil, []string{""})
	assert.ErrorIs(t, err, ErrBlankName)
}

func TestGatePrefersFirstSensitive(t *testing.T) {
	t.Parallel()

	c := Default()
	actions := []domain.Action{
		{Name: ToolFetchCustomerBooking},
		{Name: ToolSendRetentionEmail},
		{Name: ToolRequestManagerApproval},
	}
	a, ok := c.Gate(actions)
	require.True(t, ok)
	assert.Equal(t, ToolSendRetentionEmail, a.Name)

	a, ok = c.Gate(actions[:1])
	require.True(t, ok)
	assert.Equal(t, ToolFetchCustomerBooking, a.Name)

	_, ok = c.Gate(nil)
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "safe:\n  - fetch_customer_booking\n  - lookup_loyalty_tier\nsensitive:\n  - send_retention_email\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, c.IsSafe("lookup_loyalty_tier"))
	// Dropped from the file, so it falls back to default deny.
	assert.False(t, c.IsSafe(ToolGetCustomerRiskScore))
	assert.Equal(t, []string{"send_retention_email"}, c.SensitiveNames())
}

func TestLoadFileEmptyPathUsesDefault(t *testing.T) {
	t.Parallel()

	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default().SafeNames(), c.SafeNames())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("safe: [a]\nauto_approve: [b]\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("safe: [a]\nsensitive: [a]\n"))
	assert.ErrorIs(t, err, ErrOverlap)
}
