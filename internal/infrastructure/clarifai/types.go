package clarifai

import "github.com/basel-ax/omni/internal/domain"

type predictRequest struct {
	Inputs []input    `json:"inputs"`
	Model  *modelSpec `json:"model,omitempty"`
}

type input struct {
	Data inputData `json:"data"`
}

type inputData struct {
	Text *textData `json:"text,omitempty"`
}

type textData struct {
	Raw string `json:"raw"`
}

type modelSpec struct {
	ModelVersion modelVersion `json:"model_version"`
}

type modelVersion struct {
	OutputInfo outputInfo `json:"output_info"`
}

type outputInfo struct {
	Params domain.InferenceParams `json:"params,omitempty"`
}

type status struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type predictResponse struct {
	Status  *status  `json:"status"`
	Outputs []output `json:"outputs"`
}

type output struct {
	Data *OutputData `json:"data"`
}

// OutputData is the data block of one prediction output. Bytes fields arrive
// base64-encoded.
type OutputData struct {
	Text *struct {
		Raw *string `json:"raw"`
	} `json:"text"`
	Image *struct {
		Base64 *string `json:"base64"`
	} `json:"image"`
	Audio *struct {
		Base64 *string `json:"base64"`
	} `json:"audio"`
}
