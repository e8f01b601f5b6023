package config

import (
	"errors"
	"testing"

	"github.com/voxwire/voxwire/pkg/provider/stt"
	sttmock "github.com/voxwire/voxwire/pkg/provider/stt/mock"
)

func TestRegistryCreateSTT(t *testing.T) {
	r := NewRegistry()
	r.RegisterSTT("deepgram", func(entry ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{NameValue: "deepgram-" + entry.Model}, nil
	})

	p, err := r.CreateSTT(ProviderEntry{Name: "deepgram", Model: "nova-2"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p.Name() != "deepgram-nova-2" {
		t.Errorf("Name() = %q, want factory to receive the entry", p.Name())
	}
}

func TestRegistryUnregisteredProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateSTT(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSTT error = %v, want ErrProviderNotRegistered", err)
	}
	_, err = r.CreateLLM(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	r := NewRegistry()
	r.RegisterSTT("x", func(ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{NameValue: "first"}, nil
	})
	r.RegisterSTT("x", func(ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{NameValue: "second"}, nil
	})

	p, err := r.CreateSTT(ProviderEntry{Name: "x"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p.Name() != "second" {
		t.Errorf("Name() = %q, want later registration to win", p.Name())
	}
}
