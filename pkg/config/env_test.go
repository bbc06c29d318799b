package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("OTC_TEST_STR", "")
	assert.Equal(t, "fallback", GetEnv("OTC_TEST_STR", "fallback"))

	t.Setenv("OTC_TEST_STR", "value")
	assert.Equal(t, "value", GetEnv("OTC_TEST_STR", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("OTC_TEST_INT", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("OTC_TEST_INT", 7))

	t.Setenv("OTC_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("OTC_TEST_INT", 7))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("OTC_TEST_BOOL", "")
	assert.True(t, GetEnvBool("OTC_TEST_BOOL", true))

	t.Setenv("OTC_TEST_BOOL", "false")
	assert.False(t, GetEnvBool("OTC_TEST_BOOL", true))

	t.Setenv("OTC_TEST_BOOL", "yes please")
	assert.True(t, GetEnvBool("OTC_TEST_BOOL", true))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("OTC_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("OTC_TEST_DUR", time.Minute))

	t.Setenv("OTC_TEST_DUR", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("OTC_TEST_DUR", time.Minute))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("OTC_TEST_LIST", " a, b ,, c ")
	assert.Equal(t, []string{"a", "b", "c"}, GetEnvList("OTC_TEST_LIST", nil))

	t.Setenv("OTC_TEST_LIST", " , ")
	assert.Equal(t, []string{"d"}, GetEnvList("OTC_TEST_LIST", []string{"d"}))
}
