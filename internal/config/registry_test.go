package config_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	llmmock "github.com/voxpipe/voxpipe/pkg/provider/llm/mock"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	sttmock "github.com/voxpipe/voxpipe/pkg/provider/stt/mock"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
	ttsmock "github.com/voxpipe/voxpipe/pkg/provider/tts/mock"
)

func TestRegistry_CreateRegisteredProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{}, nil
	})
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Generator, error) {
		return &llmmock.Generator{}, nil
	})
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Synthesizer, error) {
		return &ttsmock.Synthesizer{}, nil
	})

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT(nonexistent) error = %v; want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryReceivesEntry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterTTS("capture", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		got = entry
		return &ttsmock.Synthesizer{}, nil
	})

	want := config.ProviderEntry{Name: "capture", APIKey: "key", Model: "m1", Voice: "v1"}
	if _, err := reg.CreateTTS(want); err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
	if got != want {
		t.Errorf("factory received %+v; want %+v", got, want)
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.RegisterSTT(name, func(config.ProviderEntry) (stt.Transcriber, error) {
			return &sttmock.Transcriber{}, nil
		})
	}
	want := []string{"alpha", "mid", "zeta"}
	if got := reg.Names("stt"); !reflect.DeepEqual(got, want) {
		t.Errorf("Names(stt) = %v; want %v", got, want)
	}
	if got := reg.Names("llm"); len(got) != 0 {
		t.Errorf("Names(llm) = %v; want empty", got)
	}
}
