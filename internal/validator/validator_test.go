package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/policy"
)

func TestValidateRejectsEmptyCode(t *testing.T) {
	v := New()
	p := policy.Default()

	for _, code := range []string{"", "   ", "\n\t\n", "  \r\n  "} {
		err := v.Validate(p, model.LanguagePython, code)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	}
}

func TestValidateRejectsOversizedCode(t *testing.T) {
	v := New()
	p := policy.Default()
	p.MaxCodeBytes = 100

	err := v.Validate(p, model.LanguagePython, strings.Repeat("x = 1\n", 50))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestValidateRejectsDisallowedLanguage(t *testing.T) {
	v := New()
	p := policy.Default()
	p.AllowedLanguages = []string{string(model.LanguageKarel)}

	err := v.Validate(p, model.LanguagePython, `print("hi")`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrSecurityViolation))
}

func TestValidateBlockedImports(t *testing.T) {
	v := New()
	p := policy.Default()

	// A blocked import must be rejected regardless of surrounding
	// whitespace or formatting.
	tests := []struct {
		name string
		code string
	}{
		{"plain import", "import os\n"},
		{"indented import", "    import os\n"},
		{"extra spaces", "import     os\n"},
		{"tabbed", "\timport\tsocket\n"},
		{"from import", "from subprocess import run\n"},
		{"from with spaces", "from   sys   import argv\n"},
		{"dotted submodule", "import os.path\n"},
		{"among other code", "x = 1\nimport shutil\nprint(x)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(p, model.LanguagePython, tt.code)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrSecurityViolation))
		})
	}
}

func TestValidateAllowsHarmlessImports(t *testing.T) {
	v := New()
	p := policy.Default()

	err := v.Validate(p, model.LanguagePython, "import math\nprint(math.pi)\n")
	assert.NoError(t, err)
}

func TestValidateBlockedFunctions(t *testing.T) {
	v := New()
	p := policy.Default()

	tests := []struct {
		name string
		code string
	}{
		{"eval", `eval("1+1")`},
		{"eval with space", `eval ("1+1")`},
		{"exec", `exec("print(1)")`},
		{"dunder import", `__import__("os").system("ls")`},
		{"open", `open("/etc/passwd")`},
		{"getattr", `getattr(x, "foo")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(p, model.LanguagePython, tt.code)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrSecurityViolation))

			// The matched token must ride along for audit logging.
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.NotEmpty(t, appErr.Field)
		})
	}
}

func TestValidateKarelRejectsHostModules(t *testing.T) {
	v := New()
	p := policy.Default()

	err := v.Validate(p, model.LanguageKarel, "move\nturn_left\nos\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrSecurityViolation))

	err = v.Validate(p, model.LanguageKarel, "import anything\n")
	require.Error(t, err)

	err = v.Validate(p, model.LanguageKarel, "move\nturn_left\nput_beeper\n")
	assert.NoError(t, err)
}

func TestValidateAcceptsPlainPython(t *testing.T) {
	v := New()
	p := policy.Default()

	code := "def add(a, b):\n    return a + b\n\nprint(add(2, 3))\n"
	assert.NoError(t, v.Validate(p, model.LanguagePython, code))
}
