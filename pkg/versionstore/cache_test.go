package versionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prepline/prepline/pkg/lineage"
)

func TestTypeCacheGetSet(t *testing.T) {
	c := newTypeCache(4, time.Minute)

	_, ok := c.get(1)
	assert.False(t, ok)

	types := lineage.DataTypes{"age": lineage.DataTypeQuantitative}
	c.set(1, types)

	got, ok := c.get(1)
	assert.True(t, ok)
	assert.Equal(t, types, got)
	assert.Equal(t, 1, c.size())
}

func TestTypeCacheExpiry(t *testing.T) {
	c := newTypeCache(4, 10*time.Millisecond)
	c.set(1, lineage.DataTypes{"age": lineage.DataTypeQuantitative})

	time.Sleep(25 * time.Millisecond)

	_, ok := c.get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.size())
}

func TestTypeCacheEvictsOldestAtCapacity(t *testing.T) {
	c := newTypeCache(2, time.Minute)

	c.set(1, lineage.DataTypes{"a": lineage.DataTypeQuantitative})
	time.Sleep(time.Millisecond)
	c.set(2, lineage.DataTypes{"b": lineage.DataTypeQualitative})
	time.Sleep(time.Millisecond)
	c.set(3, lineage.DataTypes{"c": lineage.DataTypeQuantitative})

	assert.Equal(t, 2, c.size())
	_, ok := c.get(1)
	assert.False(t, ok)
	_, ok = c.get(2)
	assert.True(t, ok)
	_, ok = c.get(3)
	assert.True(t, ok)
}

func TestTypeCacheOverwriteDoesNotEvict(t *testing.T) {
	c := newTypeCache(2, time.Minute)
	c.set(1, lineage.DataTypes{"a": lineage.DataTypeQuantitative})
	c.set(2, lineage.DataTypes{"b": lineage.DataTypeQualitative})

	c.set(1, lineage.DataTypes{"a": lineage.DataTypeQualitative})

	assert.Equal(t, 2, c.size())
	got, ok := c.get(1)
	assert.True(t, ok)
	assert.Equal(t, lineage.DataTypeQualitative, got["a"])
}

func TestTypeCacheReset(t *testing.T) {
	c := newTypeCache(4, time.Minute)
	c.set(1, lineage.DataTypes{"a": lineage.DataTypeQuantitative})
	c.set(2, lineage.DataTypes{"b": lineage.DataTypeQualitative})

	c.reset()

	assert.Equal(t, 0, c.size())
	_, ok := c.get(1)
	assert.False(t, ok)
}
