package models

// WorkflowImage is a single image as the remote workflow expects it.
type WorkflowImage struct {
	FileName string `json:"fileName"`
	DataURL  string `json:"dataUrl"`
	MimeType string `json:"mimeType"`
}

// WorkflowInput carries the images plus free-form context for one correction run.
type WorkflowInput struct {
	StudentID string          `json:"studentId"`
	Subject   string          `json:"subject"`
	Images    []WorkflowImage `json:"images"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// WorkflowResult is the correction returned by the remote workflow.
type WorkflowResult struct {
	CorrectionSummary string         `json:"correctionSummary"`
	Explanations      []string       `json:"explanations"`
	FollowUpQuestions []string       `json:"followUpQuestions"`
	Raw               map[string]any `json:"raw,omitempty"`
}

// ImagesFromPayloads converts encoded uploads into workflow images, preserving order.
func ImagesFromPayloads(payloads []EncodedPayload) []WorkflowImage {
	images := make([]WorkflowImage, 0, len(payloads))
	for _, p := range payloads {
		images = append(images, WorkflowImage{
			FileName: p.FileName,
			DataURL:  p.DataURL,
			MimeType: p.MimeType,
		})
	}
	return images
}
