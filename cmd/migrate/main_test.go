package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upErr      error
	stepsErr   error
	steps      []int
	forced     []int
	version    uint
	dirty      bool
	versionErr error
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}

func (f *fakeMigrator) Force(version int) error {
	f.forced = append(f.forced, version)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, f.versionErr
}

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand(nil)
	require.NoError(t, err)
	assert.Equal(t, command{name: "up"}, cmd)

	cmd, err = parseCommand([]string{"DOWN"})
	require.NoError(t, err)
	assert.Equal(t, "down", cmd.name)

	cmd, err = parseCommand([]string{"force", "1"})
	require.NoError(t, err)
	assert.Equal(t, command{name: "force", version: 1}, cmd)

	for _, args := range [][]string{{"force"}, {"force", "x"}, {"sideways"}, {"up", "2"}} {
		_, err := parseCommand(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestRun_Up(t *testing.T) {
	msg, err := run(&fakeMigrator{}, command{name: "up"})
	require.NoError(t, err)
	assert.Equal(t, "audit schema migrated", msg)

	msg, err = run(&fakeMigrator{upErr: migrate.ErrNoChange}, command{name: "up"})
	require.NoError(t, err)
	assert.Equal(t, "audit schema already up to date", msg)

	_, err = run(&fakeMigrator{upErr: errors.New("syntax error")}, command{name: "up"})
	assert.ErrorContains(t, err, "migrate up")
}

func TestRun_DownStepsBackOnce(t *testing.T) {
	m := &fakeMigrator{}
	_, err := run(m, command{name: "down"})
	require.NoError(t, err)
	assert.Equal(t, []int{-1}, m.steps)
}

func TestRun_ForceAndVersion(t *testing.T) {
	m := &fakeMigrator{version: 1, dirty: true}
	msg, err := run(m, command{name: "force", version: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, m.forced)
	assert.Equal(t, "forced audit schema to version 1", msg)

	msg, err = run(m, command{name: "version"})
	require.NoError(t, err)
	assert.Equal(t, "audit schema version 1 (dirty=true)", msg)

	msg, err = run(&fakeMigrator{versionErr: migrate.ErrNilVersion}, command{name: "version"})
	require.NoError(t, err)
	assert.Equal(t, "audit schema has no migrations applied", msg)
}
