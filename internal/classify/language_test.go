package classify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdcorpus/internal/logger"
)

func TestLanguageFromContent(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want Tag
	}{
		{"shell loop", "for i in 1 2 3; do echo $i; done", TagShell},
		{"batch tool", "reg query HKLM\\Software\\Microsoft", TagCmd},
		{"cmd switch", "cmd.exe /c whoami", TagCmd},
		{"batch variable", "echo %USERPROFILE%", TagCmd},
		{"powershell cmdlet", "Get-Process | Where-Object { $_.CPU -gt 100 }", TagPowerShell},
		{"powershell launcher", "powershell.exe -nop -enc SQBFAFgA", TagPowerShell},
		{"powershell static call", "[System.Convert]::FromBase64String($s)", TagPowerShell},
		{"shell tool", "ls -la", TagShell},
		{"shell path", "nohup /tmp/payload &", TagShell},
		{"python launcher", "python3 -c \"print('hi')\"", TagPython},
		{"python import", "import socket", TagPython},
		{"prose", "this log records a failed login", TagUnknown},
		{"empty", "", TagUnknown},
		{"sql is reserved", "SELECT name FROM users", TagUnknown},
		{"cmd wins ties", "certutil -decode in.b64 out.sh; cat out.sh", TagCmd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Language(tt.blob, ""))
		})
	}
}

func TestHintPrecedence(t *testing.T) {
	tests := []struct {
		hint string
		blob string
		want Tag
	}{
		{"powershell", "ls -la | grep foo", TagPowerShell},
		{"sh", "Get-Process", TagShell},
		{"bash", "whoami", TagShell},
		{"applescript", "osascript -e 'display dialog \"hi\"'", TagShell},
		{"command_prompt", "ls", TagCmd},
		{" Command_Prompt ", "ls", TagCmd},
		{"manual", "Open the control panel", TagManual},
		{"ps1", "ls", TagPowerShell},
		{"py", "ls", TagPython},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			assert.Equal(t, tt.want, Language(tt.blob, tt.hint))
		})
	}
}

func TestUnrecognizedHintFallsThrough(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetColored(false)
	t.Cleanup(func() {
		logger.SetOutput(nil)
		logger.SetColored(true)
	})

	assert.Equal(t, TagCmd, Language("whoami /all", "elevated_shell"))
	assert.Contains(t, buf.String(), `unexpected language hint "elevated_shell"`)

	buf.Reset()
	assert.Equal(t, TagUnknown, Language("this log records a failed login", "elevated_shell"))
}

func TestNormalizeHint(t *testing.T) {
	c := Default()

	tag, ok := c.NormalizeHint("PowerShell")
	require.True(t, ok)
	assert.Equal(t, TagPowerShell, tag)

	_, ok = c.NormalizeHint("")
	assert.False(t, ok)

	_, ok = c.NormalizeHint("unknown")
	assert.False(t, ok)

	_, ok = c.NormalizeHint("fortran")
	assert.False(t, ok)
}

type fixedResolver struct{ tag Tag }

func (f fixedResolver) Resolve(string) (Tag, bool) { return f.tag, true }

func TestWithResolver(t *testing.T) {
	c := New(nil, WithResolver(fixedResolver{tag: TagJavaScript}))
	assert.Equal(t, TagJavaScript, c.Language("ls -la", ""))
	assert.Equal(t, TagPowerShell, c.Language("ls -la", "powershell"))
}

func TestClassify(t *testing.T) {
	v := Classify("for i in 1 2 3; do echo $i; done", "")
	assert.Equal(t, Verdict{IsScript: true, Language: TagShell}, v)
	assert.Equal(t, KindScript, v.Kind())

	v = Classify("this log records a failed login", "")
	assert.Equal(t, Verdict{IsScript: false, Language: TagUnknown}, v)
	assert.Equal(t, KindCommand, v.Kind())

	// Same input, same answer.
	assert.Equal(t, Classify("ls | grep foo", "bash"), Classify("ls | grep foo", "bash"))
}

func TestClassifyOptional(t *testing.T) {
	c := Default()

	_, err := c.ClassifyOptional(nil, "bash")
	assert.ErrorIs(t, err, ErrNilBlob)

	blob := "ls | grep foo"
	v, err := c.ClassifyOptional(&blob, "bash")
	require.NoError(t, err)
	assert.Equal(t, Verdict{IsScript: false, Language: TagShell}, v)
}
