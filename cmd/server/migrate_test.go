package main

import (
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMigrator struct {
	mock.Mock
}

func (m *MockMigrator) Up() error    { return m.Called().Error(0) }
func (m *MockMigrator) Down() error  { return m.Called().Error(0) }
func (m *MockMigrator) Reset() error { return m.Called().Error(0) }

func (m *MockMigrator) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func (m *MockMigrator) Force(version int) error {
	return m.Called(version).Error(0)
}

func TestParseMigrateArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    migrateCommand
		wantErr bool
	}{
		{name: "up", args: []string{"up"}, want: migrateCommand{action: "up"}},
		{name: "down", args: []string{"down"}, want: migrateCommand{action: "down"}},
		{name: "reset", args: []string{"reset"}, want: migrateCommand{action: "reset"}},
		{name: "version", args: []string{"version"}, want: migrateCommand{action: "version"}},
		{name: "force", args: []string{"force", "2"}, want: migrateCommand{action: "force", version: 2}},
		{name: "no action", args: nil, wantErr: true},
		{name: "unknown action", args: []string{"sideways"}, wantErr: true},
		{name: "force without version", args: []string{"force"}, wantErr: true},
		{name: "force with bad version", args: []string{"force", "two"}, wantErr: true},
		{name: "force with negative version", args: []string{"force", "-1"}, wantErr: true},
		{name: "extra argument", args: []string{"up", "now"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMigrateArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyMigration(t *testing.T) {
	logger := log.NewNopLogger()

	t.Run("up down reset", func(t *testing.T) {
		m := new(MockMigrator)
		m.On("Up").Return(nil).Once()
		m.On("Down").Return(nil).Once()
		m.On("Reset").Return(errors.New("dirty database")).Once()

		assert.NoError(t, applyMigration(m, migrateCommand{action: "up"}, logger))
		assert.NoError(t, applyMigration(m, migrateCommand{action: "down"}, logger))
		assert.EqualError(t, applyMigration(m, migrateCommand{action: "reset"}, logger), "dirty database")
		m.AssertExpectations(t)
	})

	t.Run("force", func(t *testing.T) {
		m := new(MockMigrator)
		m.On("Force", 3).Return(nil).Once()

		assert.NoError(t, applyMigration(m, migrateCommand{action: "force", version: 3}, logger))
		m.AssertExpectations(t)
	})

	t.Run("version", func(t *testing.T) {
		m := new(MockMigrator)
		m.On("Version").Return(uint(3), false, nil).Once()

		assert.NoError(t, applyMigration(m, migrateCommand{action: "version"}, logger))
		m.AssertExpectations(t)
	})

	t.Run("version error", func(t *testing.T) {
		m := new(MockMigrator)
		m.On("Version").Return(uint(0), false, errors.New("no migration")).Once()

		err := applyMigration(m, migrateCommand{action: "version"}, logger)
		assert.ErrorContains(t, err, "no migration")
	})
}
