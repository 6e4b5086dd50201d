package sources

// YouTube implementation is split across four files by responsibility:
//   youtube_innertube.go  Innertube API types, constants, and low-level HTTP primitives
//   youtube_transcript.go caption tracks (watch page + ANDROID player fallback) and timedtext
//   youtube_search.go     Data API v3 search and the composite Platform
//   ytdlp.go              yt-dlp flat search and MP3 extraction
