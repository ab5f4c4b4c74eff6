package telegram

import (
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	files    map[string]tgbotapi.File
	fileErr  error
	getFiles int
	sendErrs []error
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeClient) GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getFiles++
	if f.fileErr != nil {
		return tgbotapi.File{}, f.fileErr
	}
	file, ok := f.files[cfg.FileID]
	if !ok {
		return tgbotapi.File{}, errors.New("Bad Request: invalid file_id")
	}
	return file, nil
}

func (f *fakeClient) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, cfg)
	return make([]tgbotapi.Message, len(cfg.Media)), nil
}

func floodErr(after int) error {
	return &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: after}}
}
