package proc

import (
	"context"
	"errors"
	"strings"

	"github.com/asticode/go-astiav"
)

const (
	opusSampleRate = 48000
	opusFrameSize  = 960
	opusBitRate    = 192000
)

// Transcoder decodes a remote audio stream and re-encodes it as 20ms Opus
// frames ready for a Discord voice connection.
type Transcoder struct {
	inputCtx               *astiav.FormatContext
	decoderCtx, encoderCtx *astiav.CodecContext
	audioStreamIndex       int
	packet                 *astiav.Packet
	frame                  *astiav.Frame
	resampleCtx            *astiav.SoftwareResampleContext
	resampleFrame          *astiav.Frame
	fifo                   *astiav.AudioFifo
	onFrame                func([]byte)
	pts                    int64
}

// OpenTranscoder opens input and prepares the decoder and Opus encoder.
// The returned transcoder must be closed.
func OpenTranscoder(input string) (*Transcoder, error) {
	t := &Transcoder{
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
	}
	if err := t.openInput(input); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.setupDecoder(); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.setupEncoder(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transcoder) openInput(in string) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc format context")
	}

	var opts *astiav.Dictionary
	if strings.HasPrefix(in, "http") {
		opts = astiav.NewDictionary()
		defer opts.Free()
		opts.Set("reconnect", "1", 0)
		opts.Set("reconnect_at_eof", "1", 0)
		opts.Set("reconnect_streamed", "1", 0)
		opts.Set("reconnect_delay_max", "30", 0)
		opts.Set("timeout", "30000000", 0)
	}
	if err := t.inputCtx.OpenInput(in, nil, opts); err != nil {
		return err
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}

	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("no audio stream")
	}
	return nil
}

func (t *Transcoder) setupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.New("no decoder")
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	if err := p.ToCodecContext(t.decoderCtx); err != nil {
		return err
	}
	return t.decoderCtx.Open(d, nil)
}

func (t *Transcoder) setupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no opus encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(opusBitRate)
	t.encoderCtx.SetSampleRate(opusSampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, opusSampleRate))

	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}

	// Configured lazily by ConvertFrame from the first decoded frame.
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	return nil
}

// Transcode pumps the whole input through the encoder, handing each Opus
// packet to onFrame. onFrame(nil) marks the end of the stream and is always
// called, even on error or cancellation.
func (t *Transcoder) Transcode(ctx context.Context, onFrame func([]byte)) error {
	defer t.packet.Unref()
	t.onFrame = onFrame
	defer onFrame(nil)

	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), opusFrameSize*2)
	defer func() {
		t.fifo.Free()
		t.fifo = nil
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			t.packet.Unref()
			continue
		}
		if err := t.decoderCtx.SendPacket(t.packet); err != nil {
			t.packet.Unref()
			return err
		}
		t.packet.Unref()

		for t.decoderCtx.ReceiveFrame(t.frame) == nil {
			t.bufferFrame()
			for t.fifo.Size() >= opusFrameSize {
				t.encodeFromFifo(opusFrameSize)
			}
		}
	}

	// Flush the decoder, drain what is left in the fifo, then flush the encoder.
	_ = t.decoderCtx.SendPacket(nil)
	for t.decoderCtx.ReceiveFrame(t.frame) == nil {
		t.bufferFrame()
	}
	for t.fifo.Size() > 0 {
		t.encodeFromFifo(min(opusFrameSize, t.fifo.Size()))
	}
	_ = t.encoderCtx.SendFrame(nil)
	t.receivePackets()
	return nil
}

func (t *Transcoder) prepareResampleFrame(samples int) {
	t.resampleFrame.Unref()
	t.resampleFrame.SetNbSamples(samples)
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
	_ = t.resampleFrame.AllocBuffer(0)
}

// bufferFrame resamples the decoded frame into the fifo.
func (t *Transcoder) bufferFrame() {
	defer t.frame.Unref()
	nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoderCtx.SampleRate())))
	if nb <= 0 {
		return
	}
	t.prepareResampleFrame(nb)
	if t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame) == nil {
		_, _ = t.fifo.Write(t.resampleFrame)
	}
}

func (t *Transcoder) encodeFromFifo(samples int) {
	t.prepareResampleFrame(samples)
	_, _ = t.fifo.Read(t.resampleFrame)
	t.resampleFrame.SetPts(t.pts)
	t.pts += int64(samples)
	if t.encoderCtx.SendFrame(t.resampleFrame) == nil {
		t.receivePackets()
	}
}

func (t *Transcoder) receivePackets() {
	for {
		p := astiav.AllocPacket()
		if t.encoderCtx.ReceivePacket(p) != nil {
			p.Free()
			return
		}
		d := p.Data()
		fd := make([]byte, len(d))
		copy(fd, d)
		p.Free()
		t.onFrame(fd)
	}
}

func (t *Transcoder) Close() {
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
