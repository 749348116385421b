package agent

import (
	"fmt"
	"strings"
)

// FixPromptPrefix starts every automatic fix request.
const FixPromptPrefix = "The code is not working. Can you fix it? Here's the error:\n\n"

// FixPrompt builds the user message sent when a rendered app fails.
func FixPrompt(errText string) string {
	return FixPromptPrefix + errText
}

// PlannedPrompt asks for a game built from an approved plan.
func PlannedPrompt(idea, plan string) string {
	return idea + "\n\nFollow this implementation plan:\n\n" + strings.TrimSpace(plan)
}

// ArchitectPrompt asks the model for an implementation plan before any code
// is written.
const ArchitectPrompt = `You are an expert software architect and product lead responsible for taking an idea of a game, analyzing it, and producing an implementation plan for a single page React frontend game. You are describing a plan for a single component React + Tailwind CSS + TypeScript game.

Guidelines:
- Focus on the MVP. Identify and prioritize the top 2-3 critical gameplay features.
- Begin with a broad overview of the game's purpose, core mechanics and player objectives, then break features down into tasks and subtasks.
- Be concise and clear. Skip code examples and commentary. Do not include any external API calls.
- The implementation must fit into one big React component and use no other libraries or frameworks.
- Consider game state management, player interactions, scoring, win/lose conditions, game loops and visual feedback.`

const codingPrompt = `# GameForge Instructions

You are GameForge, an expert frontend React engineer and game designer who specializes in creating engaging, interactive games. You create fun, playable games with great UI/UX and are concise, helpful, and friendly.

# General Instructions

- Before generating a game, think through the right requirements, structure, styling and formatting.
- Create one React component for the requested game and make it run by itself with a default export.
- Make the game interactive by keeping state where needed. The component takes no required props.
- If you use React hooks like useState or useEffect, import them directly from "react".
- Do not include any external API calls.
- Use TypeScript as the language for the React component.
- Use Tailwind classes for styling. DO NOT USE ARBITRARY VALUES (e.g. ` + "`h-[600px]`" + `).
- Write complete code that can be copied and pasted directly. Never leave parts for the user to finish.
- Default to a dark or colorful background that feels game-like.
- For placeholder images use <div className="bg-gray-200 border-2 border-dashed rounded-xl w-16 h-16" />.

# Game Design

- Bold, vibrant colors and gradients, large bold fonts for titles and scores.
- Clear game state: score, lives, levels, win and lose conditions.
- Visual feedback for player actions and a restart button for replayability.

# Formatting Instructions

NO OTHER LIBRARIES ARE INSTALLED OR ABLE TO BE IMPORTED besides react.

Explain your work. The first code fence must be the main React component. It uses "tsx" as the language followed by a sensible kebab-case filename, in this format: ` + "```tsx{filename=calculator.tsx}" + `.
`

// Example is a prompt and the reply the model should aim for.
type Example struct {
	Category string
	Prompt   string
	Response string
}

// Examples are the reference games, keyed by category.
var Examples = map[string]Example{
	"pixel platformer": {
		Category: "pixel platformer",
		Prompt:   "Build a pixel art platformer game",
		Response: "```tsx{filename=pixel-platformer.tsx}\n" + `import { useState } from "react"

export default function PixelPlatformer() {
  const [x, setX] = useState(0)
  const [score, setScore] = useState(0)
  return (
    <div className="min-h-screen bg-indigo-900 p-8 text-white">
      <h1 className="text-4xl font-bold">Pixel Platformer</h1>
      <p className="mt-4">Score: {score}</p>
      <div className="mt-8 h-64 relative bg-indigo-700 rounded-xl">
        <div className="absolute bottom-0 w-8 h-8 bg-yellow-400" style={{ left: x }} />
      </div>
      <button className="mt-4 px-4 py-2 bg-green-500 rounded" onClick={() => { setX(x + 16); setScore(score + 1) }}>Run</button>
    </div>
  )
}
` + "```",
	},
	"pixel rpg": {
		Category: "pixel rpg",
		Prompt:   "Create a pixel art RPG game",
		Response: "```tsx{filename=pixel-rpg.tsx}\n" + `import { useState } from "react"

export default function PixelRPG() {
  const [hp, setHp] = useState(20)
  const [enemy, setEnemy] = useState(15)
  const attack = () => { setEnemy(Math.max(0, enemy - 4)); setHp(Math.max(0, hp - 2)) }
  return (
    <div className="min-h-screen bg-emerald-900 p-8 text-white">
      <h1 className="text-4xl font-bold">Pixel RPG</h1>
      <p className="mt-4">Hero HP: {hp} Slime HP: {enemy}</p>
      <button className="mt-4 px-4 py-2 bg-red-500 rounded" onClick={attack}>Attack</button>
      {enemy === 0 && <p className="mt-4 text-yellow-300">Victory!</p>}
    </div>
  )
}
` + "```",
	},
	"pixel puzzle": {
		Category: "pixel puzzle",
		Prompt:   "Make a pixel art puzzle game",
		Response: "```tsx{filename=pixel-puzzle.tsx}\n" + `import { useState } from "react"

export default function PixelPuzzle() {
  const [tiles, setTiles] = useState([false, true, false, true])
  const flip = (i: number) => setTiles(tiles.map((t, j) => (j === i ? !t : t)))
  const solved = tiles.every(Boolean)
  return (
    <div className="min-h-screen bg-purple-900 p-8 text-white">
      <h1 className="text-4xl font-bold">Pixel Puzzle</h1>
      <div className="mt-8 grid grid-cols-2 gap-2 w-32">
        {tiles.map((t, i) => (
          <button key={i} className={t ? "w-16 h-16 bg-pink-400" : "w-16 h-16 bg-gray-700"} onClick={() => flip(i)} />
        ))}
      </div>
      {solved && <p className="mt-4 text-yellow-300">Solved!</p>}
    </div>
  )
}
` + "```",
	},
	"pixel arcade": {
		Category: "pixel arcade",
		Prompt:   "Create a pixel art arcade game",
		Response: "```tsx{filename=pixel-arcade.tsx}\n" + `import { useState } from "react"

export default function PixelArcade() {
  const [hits, setHits] = useState(0)
  const [lives, setLives] = useState(3)
  return (
    <div className="min-h-screen bg-slate-900 p-8 text-white">
      <h1 className="text-4xl font-bold">Pixel Arcade</h1>
      <p className="mt-4">Hits: {hits} Lives: {lives}</p>
      <button className="mt-4 px-4 py-2 bg-orange-500 rounded" onClick={() => setHits(hits + 1)}>Fire</button>
      <button className="mt-4 ml-2 px-4 py-2 bg-gray-600 rounded" onClick={() => setLives(Math.max(0, lives - 1))}>Dodge</button>
    </div>
  )
}
` + "```",
	},
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"pixel rpg", []string{"rpg", "role", "quest", "dungeon", "adventure", "hero", "battle"}},
	{"pixel puzzle", []string{"puzzle", "match", "tetris", "sudoku", "memory", "maze", "tile", "word"}},
	{"pixel arcade", []string{"arcade", "shooter", "invader", "pong", "snake", "asteroid", "breakout", "pac"}},
	{"pixel platformer", []string{"platform", "jump", "mario", "runner", "side-scroll"}},
}

// MostSimilarExample picks the example category whose keywords best match the
// prompt, or "none".
func MostSimilarExample(prompt string) string {
	p := strings.ToLower(prompt)
	best, bestHits := "none", 0
	for _, c := range categoryKeywords {
		hits := 0
		for _, w := range c.words {
			if strings.Contains(p, w) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = c.category, hits
		}
	}
	return best
}

// BuildSystemPrompt constructs the coding prompt. The platformer example is
// always included; the most similar example is appended when it differs.
func BuildSystemPrompt(mostSimilar string) string {
	var b strings.Builder
	b.WriteString(codingPrompt)

	b.WriteString("\n# Examples\n\nHere's a good example:\n\n")
	writeExample(&b, Examples["pixel platformer"])

	if ex, ok := Examples[mostSimilar]; ok && mostSimilar != "pixel platformer" {
		b.WriteString("\nHere is another example (missing explanations, just code):\n\n")
		writeExample(&b, ex)
	}
	return b.String()
}

func writeExample(b *strings.Builder, ex Example) {
	fmt.Fprintf(b, "Prompt:\n%s\n\nResponse:\n%s\n", ex.Prompt, ex.Response)
}
