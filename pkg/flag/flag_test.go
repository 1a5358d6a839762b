package flag_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/macropower/simplerules/pkg/flag"
)

func TestTemplate_Instantiate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("copies all fields and converts timeout", func(t *testing.T) {
		t.Parallel()

		tmpl := &flag.Template{
			Name:      "user.media",
			Reason:    "player",
			Timeout:   30 * time.Second,
			Priority:  5,
			Value:     7,
			Threshold: 9,
			Inherit:   true,
		}

		f := tmpl.Instantiate("simplerules", now)
		assert.Equal(t, &flag.Flag{
			Name:      "user.media",
			Source:    "simplerules",
			Reason:    "player",
			Expires:   now.Add(30 * time.Second),
			Priority:  5,
			Value:     7,
			Threshold: 9,
			Inherit:   true,
		}, f)
	})

	t.Run("zero timeout never expires", func(t *testing.T) {
		t.Parallel()

		f := (&flag.Template{Name: "daemon"}).Instantiate("simplerules", now)
		assert.True(t, f.Expires.IsZero())
		assert.False(t, f.Expired(now.Add(24*time.Hour)))
		assert.Empty(t, f.Reason)
	})

	t.Run("instances are independent", func(t *testing.T) {
		t.Parallel()

		tmpl := &flag.Template{Name: "a"}
		f1 := tmpl.Instantiate("x", now)
		f2 := tmpl.Instantiate("x", now)
		f1.Name = "changed"

		assert.Equal(t, "a", f2.Name)
		assert.Equal(t, "a", tmpl.Name)
	})
}

func TestFlag_Expired(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	f := &flag.Flag{Name: "x", Expires: now}

	assert.False(t, f.Expired(now.Add(-time.Second)))
	assert.True(t, f.Expired(now))
	assert.True(t, f.Expired(now.Add(time.Second)))
}

func TestFlag_String(t *testing.T) {
	t.Parallel()

	f := &flag.Flag{Name: "user.ui", Reason: "desktop", Priority: 3, Inherit: true}
	assert.Equal(t, `user.ui reason="desktop" priority=3 inherit`, f.String())
}
