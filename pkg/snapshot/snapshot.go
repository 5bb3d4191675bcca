// Package snapshot compares values against JSON files stored in testdata
// A missing snapshot is written on first use. Set UPDATE_SNAPSHOTS=1 to
// rewrite every snapshot a test run touches.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// Dir is where snapshots are kept, relative to the package under test
var Dir = "testdata"

var (
	funcCount = make(map[string]int)
	countLock sync.Mutex
)

// ValidateSnapshot performs snapshot testing
// depth is the number of helper frames between the test and this call.
func ValidateSnapshot(t *testing.T, obj interface{}, depth int, msgAndArgs ...interface{}) {
	t.Helper()

	pc, _, _, _ := runtime.Caller(1 + depth)
	funcName := filepath.Base(runtime.FuncForPC(pc).Name())
	filename := filepath.Join(Dir, fmt.Sprintf("%s-%d.json", funcName, nextCall(funcName)))

	objJSON, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		t.Fatalf("could not encode snapshot: %v", err)
	}

	expects, err := os.ReadFile(filename)
	if os.IsNotExist(err) || (err == nil && os.Getenv("UPDATE_SNAPSHOTS") != "") {
		if err := write(filename, objJSON); err != nil {
			t.Fatalf("could not write snapshot %s: %v", filename, err)
		}

		return
	}

	if err != nil {
		t.Fatalf("could not read snapshot %s: %v", filename, err)
	}

	if !assert.Equal(t, strings.Trim(string(expects), "\n"), strings.Trim(string(objJSON), "\n"), msgAndArgs...) {
		t.Logf("snapshot %s", filename)
	}
}

func nextCall(funcName string) int {
	countLock.Lock()
	defer countLock.Unlock()

	call := funcCount[funcName]
	funcCount[funcName] = call + 1
	return call
}

func write(filename string, objJSON []byte) error {
	logrus.WithField("filename", filename).Info("writing snapshot file")
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	return os.WriteFile(filename, append(objJSON, '\n'), 0644)
}
