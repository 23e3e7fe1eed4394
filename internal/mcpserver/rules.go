package mcpserver

// TransformRules describes what beamline does to the files it watches. It is
// served as a resource so agents can explain a run without reading the code.
const TransformRules = `# Beamline transform rules

## Cutting records (.nc1)

On creation:
1. Annotation blocks are removed. A block starts at a line beginning with "SI"
   and ends at the next two-character line written at column zero; that
   closing line is kept.
2. When the file name is 25 characters or longer, the first 10 characters
   (the producer prefix) are dropped from the name. Header lines 4 and 5 that
   are 25 characters or longer lose their first 12 characters.

On modification only step 2 runs.

## Metadata documents (.idstv)

On creation, depending on the configured strategy:
- pattern: the manufacturer prefix is cut from <Name> values, every
  <RemnantLocation> is replaced by a sentinel, and Filename,
  DrawingIdentification and PieceIdentification values of 25 characters or
  more lose their first 10 characters.
- structural: when a profile group has profile type "L", every piece shorter
  than the length threshold (279 by default) gets its identifiers normalized.

## Identifiers

An identifier has three dash-separated parts, e.g. W8722-B012-A007.
- rich:   W8722-B12-A7  (zeros trimmed in parts 2 and 3, dashes kept)
- legacy: W8722B012A7   (zeros trimmed in part 3 only, no separator)
Anything without exactly three parts is left unchanged.
`
