package rrlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urdf-scene-logger/internal/texture"
)

var info = StreamInfo{ApplicationID: "robot.urdf", RecordingID: "rec-1"}

func sampleMesh() Mesh3D {
	return Mesh3D{
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Indices:   [][3]uint32{{0, 1, 2}},
		Normals:   [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		Colors:    [][4]uint8{{102, 102, 102, 255}, {102, 102, 102, 255}, {102, 102, 102, 255}},
	}
}

func TestTimelineStamping(t *testing.T) {
	rec := &Recorder{}
	s := NewStream(rec, false)
	s.SetTimeSeconds("sim_time", 1.5)
	s.SetTimeSequence("frame", 3)

	require.NoError(t, s.Log("robot/base", Transform3D{Translation: &[3]float64{1, 2, 3}}))
	require.NoError(t, s.Log("robot/base/visual_0", sampleMesh()))

	want := []TimePoint{
		{Timeline: "sim_time", Kind: TimeSeconds, Seconds: 1.5},
		{Timeline: "frame", Kind: TimeSequence, Sequence: 3},
	}
	require.Len(t, rec.Records, 2)
	for _, r := range rec.Records {
		assert.False(t, r.Static)
		assert.Equal(t, want, r.Timelines)
	}

	s.SetTimeSequence("frame", 4)
	require.NoError(t, s.Log("robot", TextLog{Text: "x", Level: LevelInfo}))
	assert.Equal(t, int64(4), rec.Records[2].Timelines[1].Sequence)
	assert.Equal(t, int64(3), rec.Records[0].Timelines[1].Sequence, "earlier records keep their stamps")

	require.NoError(t, s.Close())
	assert.True(t, rec.Closed)
}

func TestStaticIgnoresTimelines(t *testing.T) {
	rec := &Recorder{}
	s := NewStream(rec, true)
	s.SetTimeSeconds("sim_time", 1.5)
	require.NoError(t, s.Log("robot", ViewCoordinates{Coordinates: RightHandZUp}))
	require.Len(t, rec.Records, 1)
	assert.True(t, rec.Records[0].Static)
	assert.Empty(t, rec.Records[0].Timelines)
}

func TestBinaryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, info)
	s := NewStream(enc, false)
	s.SetTimeSeconds("sim_time", 2.25)
	s.SetTimeSequence("frame", -7)

	albedo := &texture.Albedo{Width: 2, Height: 1, Channels: 3, Pix: []byte{255, 0, 0, 0, 0, 255}}
	textured := sampleMesh()
	textured.Colors = nil
	textured.UVs = [][2]float32{{0, 1}, {1, 1}, {0, 0}}
	textured.Albedo = albedo

	q := [4]float64{0, 0, 0.7071067811865476, 0.7071067811865476}
	records := []Archetype{
		Transform3D{Translation: &[3]float64{0, 0, 0.5}, Rotation: &q},
		Transform3D{Scale: &[3]float64{0.001, 0.001, 0.001}},
		sampleMesh(),
		textured,
		TextLog{Text: "Unsupported geometry type: capsule", Level: LevelWarn},
		ViewCoordinates{Coordinates: RightHandZUp},
		Mesh3D{},
	}
	for _, r := range records {
		require.NoError(t, s.Log("robot/base", r))
	}
	require.NoError(t, s.Close())

	dec := NewDecoder(&buf)
	got, err := dec.Header()
	require.NoError(t, err)
	assert.Equal(t, info, got)

	for i, want := range records {
		rec, err := dec.Next()
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, "robot/base", rec.EntityPath)
		assert.Len(t, rec.Timelines, 2)
		assert.Equal(t, 2.25, rec.Timelines[0].Seconds)
		assert.Equal(t, int64(-7), rec.Timelines[1].Sequence)
		assert.Equal(t, want.Kind(), rec.Data.Kind())
		if i != 3 {
			assert.Equal(t, want, rec.Data)
		}
	}
	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)

	// Lossless WebP keeps the albedo bytes exact.
	buf.Reset()
	enc = NewEncoder(&buf, info)
	require.NoError(t, enc.WriteRecord(&Record{EntityPath: "m", Data: textured}))
	require.NoError(t, enc.Close())
	rec, err := NewDecoder(&buf).Next()
	require.NoError(t, err)
	m := rec.Data.(Mesh3D)
	require.NotNil(t, m.Albedo)
	assert.Equal(t, albedo, m.Albedo)
	assert.Equal(t, textured.UVs, m.UVs)
}

func TestEmptyStreamHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf, info).Close())
	dec := NewDecoder(&buf)
	got, err := dec.Header()
	require.NoError(t, err)
	assert.Equal(t, info, got)
	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderRejectsGarbage(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("NOPE\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00")).Header()
	assert.ErrorIs(t, err, ErrFormat)

	_, err = decodeRecord([]byte{byte(KindTextLog), 0, 10, 0, 0, 0, 'a'})
	assert.ErrorIs(t, err, ErrFormat)

	_, err = decodeRecord([]byte{99, 0, 0, 0, 0, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestJSONEncoder(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(NewJSONEncoder(&buf, info), false)
	s.SetTimeSequence("frame", 3)
	require.NoError(t, s.Log("robot", TextLog{Text: "hello", Level: LevelInfo}))
	require.NoError(t, s.Log("robot/base", sampleMesh()))
	require.NoError(t, s.Close())

	sc := bufio.NewScanner(&buf)
	var lines []map[string]any
	for sc.Scan() {
		var v map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &v))
		lines = append(lines, v)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "rec-1", lines[0]["recording_id"])
	assert.Equal(t, "TextLog", lines[1]["kind"])
	assert.Equal(t, "hello", lines[1]["data"].(map[string]any)["text"])
	assert.Equal(t, "Mesh3D", lines[2]["kind"])
	assert.Len(t, lines[2]["data"].(map[string]any)["positions"], 3)
}

func TestWebSocketSink(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan [][]byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msgs [][]byte
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			msgs = append(msgs, msg)
		}
		received <- msgs
	}))
	defer srv.Close()

	sink, err := DialWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), info)
	require.NoError(t, err)
	s := NewStream(sink, true)
	require.NoError(t, s.Log("robot/base", Transform3D{Translation: &[3]float64{1, 0, 0}}))
	require.NoError(t, s.Close())

	msgs := <-received
	require.Len(t, msgs, 2)
	got, _, err := DecodeMessage(true, msgs[0])
	require.NoError(t, err)
	assert.Equal(t, info, got)
	_, rec, err := DecodeMessage(false, msgs[1])
	require.NoError(t, err)
	assert.Equal(t, "robot/base", rec.EntityPath)
	assert.True(t, rec.Static)
}
