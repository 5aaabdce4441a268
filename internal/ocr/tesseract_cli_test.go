package ocr

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name  string
	args  []string
	input []byte
}

type fakeRunner struct {
	langs     string
	text      string
	recognize error
	calls     []call
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	c := call{name: name, args: append([]string(nil), args...)}
	if len(args) > 0 && args[0] == "--list-langs" {
		f.calls = append(f.calls, c)
		return []byte(f.langs), nil, nil
	}
	// the payload file must exist while tesseract runs
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, []byte(err.Error()), err
	}
	c.input = data
	f.calls = append(f.calls, c)
	if f.recognize != nil {
		return nil, []byte("read error"), f.recognize
	}
	return []byte(f.text), nil, nil
}

const langList = "List of available languages in \"/usr/share/tessdata/\" (3):\neng\nosd\nspa\n"

func newTestWorker(t *testing.T, r *fakeRunner, cfg CLIConfig) *cliWorker {
	t.Helper()
	e := NewCLIEngine(cfg, nil, WithRunner(r))
	w, err := e.NewWorker(context.Background())
	require.NoError(t, err)
	return w.(*cliWorker)
}

func TestCLIWorkerRecognize(t *testing.T) {
	ctx := context.Background()
	r := &fakeRunner{langs: langList, text: "Hello PDF\n"}
	w := newTestWorker(t, r, CLIConfig{TessdataDir: "/td"})

	require.NoError(t, w.LoadLanguage(ctx, "eng"))
	require.NoError(t, w.Initialize(ctx, "eng", OEMLSTMOnly))
	require.NoError(t, w.SetParameters(ctx, map[string]string{
		ParamPageSegMode:            "3",
		"preserve_interword_spaces": "1",
	}))

	res, err := w.Recognize(ctx, Payload{Name: "a.png", MIMEType: "image/png", Data: []byte("png-bytes")})
	require.NoError(t, err)
	assert.Equal(t, "Hello PDF\n", res.Text)
	assert.Equal(t, "eng", res.Language)

	require.Len(t, r.calls, 2)
	assert.Equal(t, "tesseract", r.calls[0].name)
	assert.Equal(t, []string{"--list-langs", "--tessdata-dir", "/td"}, r.calls[0].args)

	args := r.calls[1].args
	assert.Equal(t, "input.png", filepath.Base(args[0]))
	assert.Equal(t, []string{"stdout", "-l", "eng", "--tessdata-dir", "/td", "--oem", "1", "--psm", "3",
		"-c", "preserve_interword_spaces=1"}, args[1:])
	assert.Equal(t, []byte("png-bytes"), r.calls[1].input)

	_, statErr := os.Stat(args[0])
	assert.True(t, os.IsNotExist(statErr), "payload file should be removed after recognition")

	require.NoError(t, w.Terminate())
	_, statErr = os.Stat(w.dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCLIWorkerMissingLanguage(t *testing.T) {
	r := &fakeRunner{langs: langList}
	w := newTestWorker(t, r, CLIConfig{})
	defer w.Terminate()

	err := w.LoadLanguage(context.Background(), "deu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deu")
	require.NoError(t, w.LoadLanguage(context.Background(), "eng+osd"))
}

func TestCLIWorkerRequiresInitialize(t *testing.T) {
	ctx := context.Background()
	r := &fakeRunner{langs: langList}
	w := newTestWorker(t, r, CLIConfig{})
	defer w.Terminate()

	_, err := w.Recognize(ctx, Payload{Data: []byte("x")})
	require.Error(t, err)

	require.Error(t, w.Initialize(ctx, "eng", OEMLSTMOnly), "initialize before load")
	require.NoError(t, w.LoadLanguage(ctx, "eng"))
	require.Error(t, w.Initialize(ctx, "spa", OEMLSTMOnly), "initialize with a different language")
	require.NoError(t, w.Initialize(ctx, "eng", OEMLSTMOnly))

	_, err = w.Recognize(ctx, Payload{})
	require.Error(t, err, "empty payload")

	assert.Error(t, w.SetParameters(ctx, map[string]string{ParamPageSegMode: "auto"}))
}

func TestCLIWorkerRecognizeFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("exit status 1")
	r := &fakeRunner{langs: langList, recognize: boom}
	w := newTestWorker(t, r, CLIConfig{})
	defer w.Terminate()

	require.NoError(t, w.LoadLanguage(ctx, "eng"))
	require.NoError(t, w.Initialize(ctx, "eng", OEMLSTMOnly))
	_, err := w.Recognize(ctx, Payload{MIMEType: "image/gif", Data: []byte("gif")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "read error")
	assert.Equal(t, "input.gif", filepath.Base(r.calls[1].args[0]))
}

func TestCLIWorkerTerminate(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t, &fakeRunner{langs: langList}, CLIConfig{})
	require.NoError(t, w.Terminate())
	require.NoError(t, w.Terminate())

	assert.ErrorIs(t, w.LoadLanguage(ctx, "eng"), ErrWorkerTerminated)
	assert.ErrorIs(t, w.Initialize(ctx, "eng", OEMLSTMOnly), ErrWorkerTerminated)
	assert.ErrorIs(t, w.SetParameters(ctx, nil), ErrWorkerTerminated)
	_, err := w.Recognize(ctx, Payload{Data: []byte("x")})
	assert.ErrorIs(t, err, ErrWorkerTerminated)
}

func TestParseLanguageList(t *testing.T) {
	got := parseLanguageList(langList)
	assert.Len(t, got, 3)
	assert.Contains(t, got, "eng")
	assert.NotContains(t, got, "List")
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(Config{Backend: "cli"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tesseract-cli", e.Name())

	_, err = NewEngine(Config{Backend: "cloud"}, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cloud"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...(truncated)", Truncate("abc", 2))
}
