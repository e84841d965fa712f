package repository

var (
	FormatVector = formatVector
	ParseVector  = parseVector
)
