package harbor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieStringBasicSerialization(t *testing.T) {
	c := &Cookie{
		Name:     "session",
		Value:    "abc123",
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: SameSiteLax,
	}

	s := c.String()
	assert.Contains(t, s, "session=abc123")
	assert.Contains(t, s, "Path=/")
	assert.Contains(t, s, "Secure")
	assert.Contains(t, s, "HttpOnly")
	assert.Contains(t, s, "SameSite=Lax")
}

func TestCookieStringQuotesValueWithSpaceOrComma(t *testing.T) {
	c := &Cookie{Name: "n", Value: "has space"}
	assert.Contains(t, c.String(), `n="has`)
}

func TestCookieStringEmptyForInvalidName(t *testing.T) {
	c := &Cookie{Name: "bad name", Value: "v"}
	assert.Equal(t, "", c.String())
}

func TestCookieMarkDeletedSetsMaxAgeAndExpiry(t *testing.T) {
	c := &Cookie{Name: "session", Value: "abc123"}
	c.markDeleted()

	assert.Equal(t, -1, c.MaxAge)
	assert.Equal(t, "", c.Value)
	assert.True(t, c.Expires.Before(time.Now()))

	s := c.String()
	assert.Contains(t, s, "Max-Age=0")
}

func TestCookieTableSetReplacesByName(t *testing.T) {
	tbl := NewCookieTable()

	tbl.Set(&Cookie{Name: "a", Value: "1"})
	tbl.Set(&Cookie{Name: "b", Value: "2"})
	tbl.Set(&Cookie{Name: "a", Value: "3"})

	c, ok := tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", c.Value)

	all := tbl.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)
}

func TestValidCookieDomain(t *testing.T) {
	assert.True(t, validCookieDomain("example.com"))
	assert.True(t, validCookieDomain(".example.com"))
	assert.False(t, validCookieDomain(""))
	assert.False(t, validCookieDomain("-example.com"))
	assert.False(t, validCookieDomain("example..com"))
}
