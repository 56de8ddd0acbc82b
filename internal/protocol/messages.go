package protocol

type LocateReq struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RequestID       string     `json:"request_id,omitempty"`
	Pos             [3]float64 `json:"pos"`
	Vein            string     `json:"vein,omitempty"`
	// Radius in cells; nil means the server default.
	Radius *int `json:"radius,omitempty"`
}

type VeinHit struct {
	Vein     string  `json:"vein"`
	Name     string  `json:"name"`
	Pos      [3]int  `json:"pos"`
	Cell     [2]int  `json:"cell"`
	Distance float64 `json:"distance"`
}

type LocateResp struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RequestID       string    `json:"request_id"`
	Seed            int64     `json:"seed"`
	CellSize        int       `json:"cell_size"`
	Radius          int       `json:"radius"`
	Found           bool      `json:"found"`
	Nearest         *VeinHit  `json:"nearest,omitempty"`
	All             []VeinHit `json:"all"`
	Report          []string  `json:"report,omitempty"`
}

type VeinRef struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Weight int      `json:"weight"`
	MinY   int      `json:"min_y"`
	MaxY   int      `json:"max_y"`
	Biomes []string `json:"biomes,omitempty"`
}

type VeinsResp struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Digest          string    `json:"digest"`
	Veins           []VeinRef `json:"veins"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(requestID, code, msg string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Code:            code,
		Message:         msg,
	}
}
