package extraction

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFields_Amounts(t *testing.T) {
	got := Fields("Charged $1,250.00 on receipt, then 45.99 again. Total $1,250.00.")
	assert.Equal(t, []string{"1250.00", "45.99"}, got.Amounts)
}

func TestFields_Dates(t *testing.T) {
	got := Fields("Order placed 2025-03-14, delivered 3/20/2025.")
	assert.Equal(t, []string{"2025-03-14", "3/20/2025"}, got.Dates)
}

func TestFields_References(t *testing.T) {
	got := Fields("Reference: ABC-123456 confirmed, txn #XYZ99887 pending.")
	assert.Equal(t, []string{"ABC-123456", "XYZ99887"}, got.References)
}

func TestFields_Accounts(t *testing.T) {
	got := Fields("Debited from account 12345678, acct: 987654321.")
	assert.Equal(t, []string{"12345678", "987654321"}, got.Accounts)
}

func TestFields_EmptyText(t *testing.T) {
	got := Fields("   \n\t ")
	assert.Empty(t, got.Amounts)
	assert.Empty(t, got.Dates)
	assert.Empty(t, got.References)
	assert.Empty(t, got.Phones)
	assert.Empty(t, got.Accounts)
}

func TestFields_BoundedOutput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "item %d costs $%d.00\n", i, i+1)
	}
	got := Fields(b.String())
	assert.Len(t, got.Amounts, 20)
}

func TestFields_DeduplicatesWithinField(t *testing.T) {
	got := Fields("$10.00 and again $10.00 and once more $10.00")
	assert.Equal(t, []string{"10.00"}, got.Amounts)
}
