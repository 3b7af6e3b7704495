package common

//go:generate go run github.com/dmarkham/enumer -json -type ResultStatus -trimprefix Status -transform lower

// ResultStatus is the terminal status of the export of one country
type ResultStatus int

const (
	StatusSuccess ResultStatus = iota
	StatusError
)
