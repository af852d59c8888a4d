package c3p0

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTestTableName(t *testing.T) {
	for _, name := range []string{"c3p0_test", "T", "_x", "$t1", "tbl$2"} {
		assert.NoError(t, validateTestTableName(name), name)
	}
	for _, name := range []string{"", "1abc", "a-b", "a b", "t;drop", `a"b`} {
		assert.Error(t, validateTestTableName(name), name)
	}
}
