package emit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
)

func sampleResult() *schemas.AuthResult {
	res := schemas.NewAuthResult(schemas.StepCompleted, "授权完成")
	res.Success = true
	res.UserInfo["uid"] = "10086"
	res.UserInfo["nickname"] = "晚风"
	res.Cookie = "sessionid=abc; ttwid=xyz"
	res.LocalStorage = append(res.LocalStorage, schemas.LocalStorageItem{Key: "device_id", Value: "dev-77"})
	res.CurrentURL = "https://creator.example.com/home"
	return res
}

func TestWriteResultLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, sampleResult()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3, "marker, single payload line, marker")
	assert.Equal(t, StartMarker, lines[0])
	assert.Equal(t, EndMarker, lines[2])
	assert.True(t, strings.HasPrefix(lines[1], "{"))
	assert.Contains(t, lines[1], `"success":true`)
	assert.Contains(t, lines[1], `"currentUrl":"https://creator.example.com/home"`)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	want := sampleResult()
	require.NoError(t, WriteResult(&buf, want))

	got, err := ScanResult(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestScanResultIgnoresNoise(t *testing.T) {
	t.Parallel()

	var payload bytes.Buffer
	require.NoError(t, WriteResult(&payload, sampleResult()))

	noisy := strings.Join([]string{
		"[INFO] starting up",
		"some stray stdout from a child process",
		"xxRESULT_JSON_STARTxx is not a marker",
		payload.String() + "[DEBUG] trailing chatter",
	}, "\n")

	got, err := ScanResult(strings.NewReader(noisy))
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, "10086", got.UserInfo["uid"])
}

func TestScanResultNoMarkers(t *testing.T) {
	t.Parallel()

	_, err := ScanResult(strings.NewReader("just logs\nnothing else\n"))
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestScanResultUnterminated(t *testing.T) {
	t.Parallel()

	in := StartMarker + "\n{\"success\":true}\n"
	_, err := ScanResult(strings.NewReader(in))
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestScanResultBadPayload(t *testing.T) {
	t.Parallel()

	in := StartMarker + "\n{not json\n" + EndMarker + "\n"
	_, err := ScanResult(strings.NewReader(in))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResult)
}

func TestFailureResultRoundTrip(t *testing.T) {
	t.Parallel()

	res := schemas.NewAuthResult(schemas.StepWaitingLogin, "")
	res.Fail(schemas.StepFailed, "等待登录超时", nil)

	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, res))

	got, err := ScanResult(&buf)
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, schemas.StepFailed, got.Step)
	assert.Equal(t, "等待登录超时", got.Error)
}
