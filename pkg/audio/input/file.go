// ABOUTME: File-backed capture devices
// ABOUTME: Replays WAV, AIFF, FLAC, MP3, Ogg Vorbis and Opus files at real-time pace, looping at EOF
package input

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
	"gopkg.in/hraban/opus.v2"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/decode"
	"github.com/pcmprobe/pcmprobe/pkg/audio/encode"
)

// opusRate is the rate every Opus stream decodes at
const opusRate = 48000

// clip is a fully decoded file in its native format
type clip struct {
	format  audio.SampleFormat
	samples []int32 // interleaved
}

// codec probes and loads one container type
type codec struct {
	probe func(f *os.File) (audio.SampleFormat, error)
	load  func(f *os.File) (clip, error)
}

var codecs = map[string]codec{
	".wav":  {probeWAV, loadWAV},
	".aiff": {probeAIFF, loadAIFF},
	".aif":  {probeAIFF, loadAIFF},
	".flac": {probeFLAC, loadFLAC},
	".mp3":  {probeMP3, loadMP3},
	".ogg":  {probeOgg, loadOgg},
	".opus": {probeOpus, loadOpus},
}

// SupportedFile reports whether path has an extension the file backend reads
func SupportedFile(path string) bool {
	_, ok := codecs[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileBackend exposes each supported audio file in a directory as a device
type FileBackend struct {
	Dir    string
	Period time.Duration
}

// NewFileBackend creates a file backend for dir
func NewFileBackend(dir string, period time.Duration) *FileBackend {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &FileBackend{Dir: dir, Period: period}
}

// Name returns the backend name
func (b *FileBackend) Name() string { return "file" }

// Devices lists the supported files in the directory
func (b *FileBackend) Devices() ([]Device, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", audio.ErrSecurityRestriction, b.Dir)
		}
		return nil, fmt.Errorf("failed to list %s: %w", b.Dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !SupportedFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	devices := make([]Device, 0, len(names))
	for _, name := range names {
		devices = append(devices, NewFileDevice(filepath.Join(b.Dir, name), b.Period))
	}
	return devices, nil
}

// FileDevice replays one audio file
type FileDevice struct {
	stream

	path   string
	codec  codec
	period time.Duration

	genMu   sync.Mutex
	clip    *clip
	pos     int
	encoder *encode.PCMEncoder
	chunk   []int32
}

// NewFileDevice creates a device for path
func NewFileDevice(path string, period time.Duration) *FileDevice {
	return &FileDevice{
		stream: newStream("file:" + path),
		path:   path,
		codec:  codecs[strings.ToLower(filepath.Ext(path))],
		period: period,
	}
}

// Info describes the device
func (d *FileDevice) Info() DeviceInfo {
	return DeviceInfo{Name: filepath.Base(d.path), Backend: "file", Description: d.path}
}

// Formats returns the file's native format
func (d *FileDevice) Formats() ([]audio.SampleFormat, error) {
	if d.codec.probe == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, d.path)
	}

	f, err := openAudioFile(d.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, err := d.codec.probe(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.path, err)
	}
	return []audio.SampleFormat{format.Normalize()}, nil
}

// Open decodes the file and starts the paced producer
func (d *FileDevice) Open(format audio.SampleFormat, bufferBytes int) error {
	c, err := d.loadClip()
	if err != nil {
		return err
	}
	if !matchFormat([]audio.SampleFormat{c.format}, format) {
		return fmt.Errorf("%w: %s plays as %s", ErrUnsupportedFormat, filepath.Base(d.path), c.format)
	}

	encoder, err := encode.NewPCM(c.format)
	if err != nil {
		return err
	}

	frames := periodFrames(c.format.SampleRate, d.period)
	periodBytes := frames * c.format.FrameBytes()
	if err := d.openStream(c.format, pacedBuffer(bufferBytes, periodBytes)); err != nil {
		return err
	}

	d.genMu.Lock()
	d.encoder = encoder
	d.pos = 0
	d.chunk = make([]int32, frames*c.format.Channels)
	d.genMu.Unlock()

	d.logger.Info("file device opened", "format", c.format.String(), "frames", len(c.samples)/c.format.Channels)
	d.runPaced(d.period, periodBytes, d.fill)
	return nil
}

// loadClip decodes the file once and caches it
func (d *FileDevice) loadClip() (*clip, error) {
	d.genMu.Lock()
	defer d.genMu.Unlock()

	if d.clip != nil {
		return d.clip, nil
	}
	if d.codec.load == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, d.path)
	}

	f, err := openAudioFile(d.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := d.codec.load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", d.path, err)
	}
	if len(c.samples) < c.format.Channels {
		return nil, fmt.Errorf("%s holds no audio", d.path)
	}
	c.format = c.format.Normalize()
	d.clip = &c
	return d.clip, nil
}

// fill copies the next period of the clip into buf, wrapping at the end
func (d *FileDevice) fill(buf []byte) error {
	d.genMu.Lock()
	defer d.genMu.Unlock()

	for i := range d.chunk {
		d.chunk[i] = d.clip.samples[d.pos]
		d.pos++
		if d.pos >= len(d.clip.samples) {
			d.pos = 0
		}
	}
	_, err := d.encoder.EncodeInto(buf, d.chunk)
	return err
}

// openAudioFile opens path, mapping permission failures to ErrSecurityRestriction
func openAudioFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", audio.ErrSecurityRestriction, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// WAV: native layout, 8-bit unsigned, wider widths signed little-endian

func newWAVDecoder(f *os.File) (*wav.Decoder, audio.SampleFormat, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, audio.SampleFormat{}, fmt.Errorf("%w: not a valid WAV file", ErrUnsupportedFormat)
	}
	if dec.WavAudioFormat != 1 {
		return nil, audio.SampleFormat{}, fmt.Errorf("%w: WAV encoding %d is not integer PCM",
			ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	bits := int(dec.BitDepth)
	format := audio.SampleFormat{
		BitsPerSample: bits,
		Channels:      int(dec.NumChans),
		Signed:        bits > 8,
		SampleRate:    float64(dec.SampleRate),
	}
	return dec, format, format.Validate()
}

func probeWAV(f *os.File) (audio.SampleFormat, error) {
	_, format, err := newWAVDecoder(f)
	return format, err
}

func loadWAV(f *os.File) (clip, error) {
	dec, format, err := newWAVDecoder(f)
	if err != nil {
		return clip{}, err
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return clip{}, err
	}
	return clip{format: format, samples: intsToSamples(buf.Data)}, nil
}

// AIFF: signed big-endian at the native bit depth

func newAIFFDecoder(f *os.File) (*aiff.Decoder, audio.SampleFormat, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, audio.SampleFormat{}, fmt.Errorf("%w: not a valid AIFF file", ErrUnsupportedFormat)
	}
	dec.ReadInfo()

	format := audio.SampleFormat{
		BitsPerSample: int(dec.BitDepth),
		Channels:      int(dec.NumChans),
		Signed:        true,
		BigEndian:     true,
		SampleRate:    float64(dec.SampleRate),
	}
	return dec, format, format.Validate()
}

func probeAIFF(f *os.File) (audio.SampleFormat, error) {
	_, format, err := newAIFFDecoder(f)
	return format, err
}

func loadAIFF(f *os.File) (clip, error) {
	dec, format, err := newAIFFDecoder(f)
	if err != nil {
		return clip{}, err
	}

	intBuf := &goaudio.IntBuffer{
		Data:   make([]int, 4096*format.Channels),
		Format: dec.Format(),
	}
	var samples []int32
	for {
		n, err := dec.PCMBuffer(intBuf)
		samples = append(samples, intsToSamples(intBuf.Data[:n])...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return clip{}, err
		}
		if n == 0 {
			break
		}
	}
	return clip{format: format, samples: samples}, nil
}

// FLAC: signed little-endian at the native bit depth

func openFLAC(f *os.File) (*flac.Stream, audio.SampleFormat, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, audio.SampleFormat{}, err
	}
	format := audio.SampleFormat{
		BitsPerSample: int(stream.Info.BitsPerSample),
		Channels:      int(stream.Info.NChannels),
		Signed:        true,
		SampleRate:    float64(stream.Info.SampleRate),
	}
	return stream, format, format.Validate()
}

func probeFLAC(f *os.File) (audio.SampleFormat, error) {
	_, format, err := openFLAC(f)
	return format, err
}

func loadFLAC(f *os.File) (clip, error) {
	stream, format, err := openFLAC(f)
	if err != nil {
		return clip{}, err
	}

	var samples []int32
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return clip{}, err
		}
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < format.Channels; ch++ {
				samples = append(samples, frame.Subframes[ch].Samples[i])
			}
		}
	}
	return clip{format: format, samples: samples}, nil
}

// MP3: the decoder always yields 16-bit little-endian stereo

func mp3Format(rate int) audio.SampleFormat {
	return audio.SampleFormat{BitsPerSample: 16, Channels: 2, Signed: true, SampleRate: float64(rate)}
}

func probeMP3(f *os.File) (audio.SampleFormat, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return audio.SampleFormat{}, err
	}
	return mp3Format(dec.SampleRate()), nil
}

func loadMP3(f *os.File) (clip, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return clip{}, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return clip{}, err
	}

	format := mp3Format(dec.SampleRate())
	raw = raw[:len(raw)-len(raw)%format.FrameBytes()]
	samples, err := decode.Decode(raw, format)
	if err != nil {
		return clip{}, err
	}
	return clip{format: format, samples: samples}, nil
}

// Ogg Vorbis: float output packed as 16-bit little-endian

func vorbisFormat(r *oggvorbis.Reader) audio.SampleFormat {
	return audio.SampleFormat{BitsPerSample: 16, Channels: r.Channels(), Signed: true, SampleRate: float64(r.SampleRate())}
}

func probeOgg(f *os.File) (audio.SampleFormat, error) {
	r, err := oggvorbis.NewReader(f)
	if err != nil {
		return audio.SampleFormat{}, err
	}
	return vorbisFormat(r), nil
}

func loadOgg(f *os.File) (clip, error) {
	r, err := oggvorbis.NewReader(f)
	if err != nil {
		return clip{}, err
	}
	format := vorbisFormat(r)
	encoder, err := encode.NewPCM(format)
	if err != nil {
		return clip{}, err
	}

	buf := make([]float32, 4096*format.Channels)
	var samples []int32
	for {
		n, err := r.Read(buf)
		for _, v := range buf[:n] {
			samples = append(samples, encoder.Scale(float64(v)))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return clip{}, err
		}
		if n == 0 {
			break
		}
	}
	return clip{format: format, samples: samples}, nil
}

// Opus: decoded at 48 kHz as 16-bit little-endian

// opusChannels reads the channel count from the OpusHead packet
func opusChannels(f *os.File) (int, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}
	idx := bytes.Index(head[:n], []byte("OpusHead"))
	if idx < 0 || idx+9 >= n {
		return 0, fmt.Errorf("%w: no OpusHead packet", ErrUnsupportedFormat)
	}
	channels := int(head[idx+9])
	if channels < 1 {
		return 0, fmt.Errorf("%w: OpusHead declares %d channels", ErrUnsupportedFormat, channels)
	}
	return channels, nil
}

func probeOpus(f *os.File) (audio.SampleFormat, error) {
	channels, err := opusChannels(f)
	if err != nil {
		return audio.SampleFormat{}, err
	}
	return audio.SampleFormat{BitsPerSample: 16, Channels: channels, Signed: true, SampleRate: opusRate}, nil
}

func loadOpus(f *os.File) (clip, error) {
	format, err := probeOpus(f)
	if err != nil {
		return clip{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return clip{}, err
	}

	s, err := opus.NewStream(f)
	if err != nil {
		return clip{}, fmt.Errorf("failed to open Opus stream: %w", err)
	}
	defer s.Close()

	pcm := make([]int16, 5760*format.Channels) // 120 ms at 48 kHz
	var samples []int32
	for {
		n, err := s.Read(pcm)
		for _, v := range pcm[:n*format.Channels] {
			samples = append(samples, int32(v))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return clip{}, err
		}
		if n == 0 {
			break
		}
	}
	return clip{format: format, samples: samples}, nil
}

func intsToSamples(data []int) []int32 {
	out := make([]int32, len(data))
	for i, v := range data {
		out[i] = int32(v)
	}
	return out
}
