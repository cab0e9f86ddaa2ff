// Package id generates the identifiers attached to bus messages and
// transactions.
package id

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

var (
	generatorMutex sync.Mutex
	generator      IDGenerator
)

// UseSequentialIDGenerator configures the package to generate IDs in
// sequence. This is the default and keeps simulations reproducible.
func UseSequentialIDGenerator() {
	setGenerator(&sequentialIDGenerator{})
}

// UseParallelIDGenerator configures the package to generate globally unique
// IDs. The IDs generated will not be deterministic anymore.
func UseParallelIDGenerator() {
	setGenerator(parallelIDGenerator{})
}

func setGenerator(g IDGenerator) {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if generator != nil {
		log.Panic("cannot change id generator type after using it")
	}

	generator = g
}

// GetIDGenerator returns the ID generator used in the current simulation.
func GetIDGenerator() IDGenerator {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if generator == nil {
		generator = &sequentialIDGenerator{}
	}

	return generator
}

// Generate creates a new ID with the current generator.
func Generate() string {
	return GetIDGenerator().Generate()
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(idNumber, 10)
}

type parallelIDGenerator struct{}

func (g parallelIDGenerator) Generate() string {
	return xid.New().String()
}
