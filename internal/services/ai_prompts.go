// internal/services/ai_prompts.go
package services

import "fmt"

const maxBreakdownScriptRunes = 30000

const shotPromptFormat = `"[Subject/Character visual description], [Action/Pose], [Environment/Background], [Lighting], [Camera Angle/Shot Type], [Art Style/Vibe], 8k, cinematic, photorealistic"`

func polishPromptText(original string) string {
	return fmt.Sprintf("You are an expert prompt engineer for Midjourney and Imagen. Expand this short description into a highly detailed, professional image generation prompt. Focus on lighting, texture, camera lens, and artistic style. Keep it under 100 words.\n\nInput: \"%s\"", original)
}

func mockPolish(original string) string {
	return fmt.Sprintf("(Polished) %s, highly detailed, cinematic lighting, 8k resolution, photorealistic texture.", original)
}

func breakdownPromptText(script string) string {
	runes := []rune(script)
	if len(runes) > maxBreakdownScriptRunes {
		script = string(runes[:maxBreakdownScriptRunes])
	}
	return `Analyze the following script text.
Split it into logical Episodes.
IMPORTANT: For EACH episode, you must also extract the key assets (Characters, Scenes, Props) that appear IN THAT SPECIFIC EPISODE.

Return a JSON object with this structure:
{
    "episodes": [
        {
            "title": "Episode 1: ...",
            "content": "...",
            "assets": {
                "characters": ["Name1", "Name2"],
                "scenes": ["Location1"],
                "props": ["Item1"]
            }
        }
    ]
}

Script:
` + script
}

func analyzeScriptPromptText(script string) string {
	return `You are an expert Director of Photography (DP) and AI Prompt Engineer.
Analyze the following script text.
Break it down into Scenes (based on location/time) and Shots (Tasks).

For each shot, you MUST generate a specialized 'prompt' for AI image generation (Midjourney/Stable Diffusion style).
The 'prompt' must be in English, strictly following this format:
` + shotPromptFormat + `

Return a JSON array of Scene objects: [{"id","title","content","tasks":[{"title","script","prompt","duration",
"actionDescription","cameraMovement","breakdown":{"subject","composition","lighting","mood"},
"extractedAssets":{"characters":[],"scenes":[],"props":[]}}]}]

Script:
` + script
}

func analyzeScenePromptText(content string) string {
	return `You are an expert Director of Photography (DP) and AI Prompt Engineer.
Break down the following scene script into a list of Camera Shots (Tasks).

For each shot, you MUST generate a specialized 'prompt' for AI image generation (Midjourney/Stable Diffusion style).
The 'prompt' must be in English, strictly following this format:
` + shotPromptFormat + `

Return JSON array of task objects with title, script, prompt, breakdown, duration.

Scene Content:
` + content
}
