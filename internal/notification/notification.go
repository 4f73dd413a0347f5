/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/internal/request"
	"github.com/sirupsen/logrus"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(title string, err error, at time.Time) slackMessage {
	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title, Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", err)}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))}}},
	}}
}

// SlackNotification posts err to a Slack incoming webhook.
func SlackNotification(ctx context.Context, webhookURL, title string, err error) error {
	payload, jsonErr := request.ToJsonReq(buildSlackMessage(title, err, time.Now()))
	if jsonErr != nil {
		return jsonErr
	}

	req, reqErr := http.NewRequest(http.MethodPost, webhookURL, payload)
	if reqErr != nil {
		return reqErr
	}

	_, callErr := request.Call(ctx, req, nil)
	return callErr
}

// NotifyError logs systemError and, when a Slack webhook is configured,
// forwards it there. It never blocks the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Error(err)
			return
		}
		if conf.Notification.Slack.WebhookUrl == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		title := fmt.Sprintf("Error From %s", conf.ProjectName)
		if err := SlackNotification(ctx, conf.Notification.Slack.WebhookUrl, title, systemError); err != nil {
			logrus.Errorf("failed to send slack notification: %v", err)
		}
	}(systemError)
}
