package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x int);\nCREATE TABLE b (y int);")
	assert.Len(t, stmts, 2)
}

func TestReplicaFallsBackToWriteWhenEmpty(t *testing.T) {
	write := &gorm.DB{}
	p := &Pool{Write: write}
	assert.Same(t, write, p.Replica())
}

func TestReplicaRoundRobin(t *testing.T) {
	r1, r2 := &gorm.DB{}, &gorm.DB{}
	p := &Pool{replicas: []*gorm.DB{r1, r2}}

	seen := map[*gorm.DB]int{}
	for i := 0; i < 4; i++ {
		seen[p.Replica()]++
	}
	assert.Equal(t, 2, seen[r1])
	assert.Equal(t, 2, seen[r2])
}

func TestSandboxNilWhenUnconfigured(t *testing.T) {
	p := &Pool{}
	assert.Nil(t, p.Sandbox())
}
