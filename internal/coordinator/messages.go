package coordinator

import (
	"fmt"

	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/progress"
)

const (
	msgAnalyzing       = "🔎 Analyzing page, please wait..."
	msgRelaying        = "📤 Sending URL to destination..."
	msgRelayed         = "✅ Sent via direct URL."
	msgStartDownload   = "⬇️ Starting download..."
	msgStartUpload     = "📤 Uploading file..."
	msgUploaded        = "✅ Upload complete."
	msgCancelRequested = "Cancel requested. Current download/upload will stop shortly."
)

func info(text string) progress.Message {
	return progress.Message{Kind: progress.Info, Text: text}
}

func summary(j *job.Job) progress.Message {
	fetchable := "No"
	if j.Verdict.FetchableWithoutSession {
		fetchable = "Yes"
	}

	return progress.Message{
		Kind: progress.Prompt,
		Text: fmt.Sprintf("🎬 Found best quality: %s\n📦 Size: %s\n🌐 Publicly fetchable: %s\n\nProceed?",
			j.Candidate.Resolution(), progress.Size(j.Verdict.KnownSize), fetchable),
	}
}

func relayFallback(err error) progress.Message {
	return info(fmt.Sprintf("❌ Failed to send via URL: %v\nFalling back to server download.", err))
}

func result(j *job.Job, completedText string) progress.Message {
	text := completedText
	if j.State != job.StateCompleted {
		text = "❌ " + DescribeError(j.Err)
	}

	return progress.Message{Kind: progress.Result, Text: text}
}
