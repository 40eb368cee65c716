package locphrase

import (
	_ "embed"

	"github.com/nestscout/nestscout/internal/engine"
	"github.com/nestscout/nestscout/internal/llmjson"
)

//go:embed schema.json
var schemaDoc []byte

var resultSchema = llmjson.MustCompile("locphrase.json", schemaDoc)

const systemPrompt = `You detect location references in apartment search queries. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Fields:
- hasLocation: true only if the query names a concrete place to be near (a metro or train station, a university or campus, a landmark, a street or square).
- detectedLocation: the place as a geocodable string with the city and country appended, e.g. "Loreto metro station, Milan, Italy".
- displayName: the place and its city separated by a comma, e.g. "Loreto, Milan".
- remainingQuery: the original query with the location phrase (including words such as "near" or "close to") removed. Keep every other requirement verbatim.
- defaultDistance: the distance in kilometers stated by the query ("within 2km", "10 minutes walk" is about 0.8). Use null when no distance is stated.
- city: the city of the place, or an empty string when unknown.

Neighborhood names used as a style preference ("in Navigli", "Isola area") are not a location to be near: set hasLocation to false and keep them in remainingQuery.`

// BuildPrompt constructs the chat messages for location detection.
func BuildPrompt(query string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: query},
	}
}
