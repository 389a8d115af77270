package pulseaudio

import (
	"fmt"

	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/voicepause/pkg/audio/types"
)

type RecordStream struct {
	Client *pulse.Client
	*pulse.RecordStream
}

var _ types.RecordStream = (*RecordStream)(nil)

func newRecordStream(
	client *pulse.Client,
	pulseStream *pulse.RecordStream,
) *RecordStream {
	return &RecordStream{
		Client:       client,
		RecordStream: pulseStream,
	}
}

func (stream *RecordStream) Error() error {
	if err := stream.RecordStream.Error(); err != nil {
		return err
	}
	if stream.RecordStream.Closed() {
		return fmt.Errorf("the record stream was closed by the server")
	}
	return nil
}

func (stream *RecordStream) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	stream.RecordStream.Stop()
	stream.RecordStream.Close()
	stream.Client.Close()
	return
}
